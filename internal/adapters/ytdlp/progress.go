package ytdlp

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	downloadPercentRe = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)
	ffmpegTimeRe      = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)
)

// postprocessor prefixes yt-dlp prints once the media bytes are in.
var finalizingPrefixes = []string{"[Merger]", "[FixupM3u8]", "[FixupM4a]", "[VideoConvertor]", "[VideoRemuxer]", "[FFmpeg"}

// progressParser turns yt-dlp and ffmpeg output lines into percentages.
// Section downloads are handed to ffmpeg, whose "time=" counter is measured
// against the clip length.
type progressParser struct {
	clipSeconds float64
	last        float64
}

func newProgressParser(clipSeconds float64) *progressParser {
	return &progressParser{clipSeconds: clipSeconds}
}

func (p *progressParser) parse(line string) (float64, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, "", false
	}

	if m := downloadPercentRe.FindStringSubmatch(line); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, "", false
		}
		return p.emit(v), detailDownloading, true
	}

	if m := ffmpegTimeRe.FindStringSubmatch(line); m != nil && p.clipSeconds > 0 {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		s, _ := strconv.ParseFloat(m[3], 64)
		elapsed := float64(h*3600+mins*60) + s
		return p.emit(elapsed / p.clipSeconds * 100), detailCutting, true
	}

	for _, prefix := range finalizingPrefixes {
		if strings.HasPrefix(line, prefix) {
			return p.last, detailFinalizing, true
		}
	}
	return 0, "", false
}

func (p *progressParser) emit(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	p.last = v
	return v
}
