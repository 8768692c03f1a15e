package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/core/domain"
	"clipforge/pkg/timeutil"
)

var (
	clipStart   string
	clipEnd     string
	clipQuality string
	clipOutput  string
)

var metadataCmd = &cobra.Command{
	Use:   "metadata <url>",
	Short: "Print title, duration and thumbnail of a video as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		meta, err := a.orchestrator.Metadata(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	},
}

var clipCmd = &cobra.Command{
	Use:   "clip <url>",
	Short: "Extract a clip to a local file",
	Example: `  clipforge clip https://youtu.be/dQw4w9WgXcQ --start 0:30 --end 0:45
  clipforge clip https://youtu.be/dQw4w9WgXcQ -s 90 -e 1:45 -q 720 -o intro.mp4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildClipRequest(args[0], clipStart, clipEnd, clipQuality)
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		began := time.Now()
		events, err := a.orchestrator.StreamClip(ctx, req)
		if err != nil {
			return err
		}

		out := cmd.ErrOrStderr()
		var final domain.ProgressEvent
		for ev := range events {
			if ev.Terminal() {
				final = ev
				continue
			}
			fmt.Fprintf(out, "\r%5.1f%%  %-32s", ev.Percent, ev.Detail)
		}
		fmt.Fprintln(out)

		switch final.Status {
		case domain.StatusComplete:
		case domain.StatusError:
			return errors.New(final.Error)
		default:
			return errors.New("clip extraction cancelled")
		}

		if err := moveFile(final.FilePath, clipOutput); err != nil {
			return err
		}
		start, end := req.Range()
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s-%s, took %s)\n", clipOutput, start, end, formatElapsed(time.Since(began)))
		return nil
	},
}

func init() {
	clipCmd.Flags().StringVarP(&clipStart, "start", "s", "", "start time (seconds, MM:SS or HH:MM:SS)")
	clipCmd.Flags().StringVarP(&clipEnd, "end", "e", "", "end time (seconds, MM:SS or HH:MM:SS)")
	clipCmd.Flags().StringVarP(&clipQuality, "quality", "q", "", "maximum height, e.g. 720 (default best)")
	clipCmd.Flags().StringVarP(&clipOutput, "output", "o", "clip.mp4", "output file")
	_ = clipCmd.MarkFlagRequired("start")
	_ = clipCmd.MarkFlagRequired("end")
}

func buildClipRequest(url, start, end, quality string) (domain.ClipRequest, error) {
	s, err := timeutil.ParseTimeToSeconds(start)
	if err != nil {
		return domain.ClipRequest{}, fmt.Errorf("invalid --start: %w", err)
	}
	e, err := timeutil.ParseTimeToSeconds(end)
	if err != nil {
		return domain.ClipRequest{}, fmt.Errorf("invalid --end: %w", err)
	}
	startSec, endSec := domain.Seconds(s), domain.Seconds(e)
	return domain.ClipRequest{URL: url, Start: &startSec, End: &endSec, Quality: quality}, nil
}

// moveFile renames src to dst, copying when they sit on different devices.
func moveFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open clip: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return os.Remove(src)
}
