package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"clipforge/internal/core/ports"
)

const (
	stderrTailLines = 20
	waitDelay       = 5 * time.Second
)

// Options tunes how yt-dlp is invoked.
type Options struct {
	// FFmpegPath is handed to yt-dlp for cutting and merging. Empty means
	// yt-dlp finds ffmpeg on PATH itself.
	FFmpegPath      string
	MetadataTimeout time.Duration
	ExtractTimeout  time.Duration
}

// Client runs the yt-dlp binary. It implements ports.MetadataSource and
// ports.Extractor.
type Client struct {
	provisioner ports.Provisioner
	opts        Options
	logger      hclog.Logger
}

// NewClient creates a new Client. The binary is provisioned on first use.
func NewClient(p ports.Provisioner, opts Options, logger hclog.Logger) *Client {
	if opts.MetadataTimeout == 0 {
		opts.MetadataTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		provisioner: p,
		opts:        opts,
		logger:      logger.Named("ytdlp"),
	}
}

// execError describes a failed yt-dlp run.
type execError struct {
	args   []string
	stderr string
	err    error
}

func (e *execError) Error() string {
	return fmt.Sprintf("yt-dlp %s failed: %v, stderr: %s", strings.Join(e.args, " "), e.err, e.stderr)
}

func (e *execError) Unwrap() error {
	return e.err
}

// reason picks the line that best explains a failure, preferring yt-dlp's own
// "ERROR:" lines.
func (e *execError) reason() string {
	lines := strings.Split(strings.TrimSpace(e.stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	if errors.Is(e.err, exec.ErrNotFound) {
		return "yt-dlp could not be started"
	}
	return ""
}

// output runs yt-dlp to completion and returns its stdout.
func (c *Client) output(ctx context.Context, args ...string) ([]byte, error) {
	bin, err := c.provisioner.EnsureReady(ctx)
	if err != nil {
		return nil, err
	}

	cmd := c.command(ctx, bin.Path, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &execError{args: args, stderr: stderr.String(), err: err}
	}
	return stdout.Bytes(), nil
}

// command builds a yt-dlp invocation bound to ctx. Cancelling ctx kills the
// process and its descendants; WaitDelay bounds how long Wait then waits for
// the output pipes to drain.
func (c *Client) command(ctx context.Context, bin string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, bin, args...)
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

// stream runs yt-dlp and hands every output line, from stdout and stderr, to
// onLine on a single goroutine. Lines are split on both \n and \r so ffmpeg's
// carriage-return progress comes through as it happens.
func (c *Client) stream(ctx context.Context, bin string, args []string, onLine func(line string, stderr bool)) error {
	cmd := c.command(ctx, bin, args)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return &execError{args: args, err: err}
	}

	// Wait runs alongside the readers so that WaitDelay applies once ctx is
	// done, even if a descendant still holds the pipes.
	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		waitErr <- err
	}()

	type outputLine struct {
		text   string
		stderr bool
	}
	lines := make(chan outputLine, 64)
	var wg sync.WaitGroup
	scan := func(r io.Reader, isStderr bool) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		sc.Split(scanLinesOrCR)
		for sc.Scan() {
			lines <- outputLine{text: sc.Text(), stderr: isStderr}
		}
		// Keep the writer unblocked after an oversized line.
		_, _ = io.Copy(io.Discard, r)
	}
	wg.Add(2)
	go scan(stdoutR, false)
	go scan(stderrR, true)
	go func() {
		wg.Wait()
		close(lines)
	}()

	tail := newLineTail(stderrTailLines)
	for line := range lines {
		if line.stderr {
			tail.add(line.text)
		}
		onLine(line.text, line.stderr)
	}

	if err := <-waitErr; err != nil {
		return &execError{args: args, stderr: tail.String(), err: err}
	}
	return nil
}

// scanLinesOrCR is bufio.ScanLines that also breaks on a bare '\r'.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		adv := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			adv++
		}
		return adv, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

type lineTail struct {
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
