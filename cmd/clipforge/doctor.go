package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

const ffmpegInstallURL = "https://ffmpeg.org/download.html"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that yt-dlp and ffmpeg are usable",
	Long: `Provision yt-dlp (downloading it if needed) and look for ffmpeg, which
yt-dlp needs to cut sections and merge streams.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Checking dependencies...")
		fmt.Fprintln(out)

		allGood := true

		ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Tool.DownloadTimeout+30*time.Second)
		defer cancel()
		if bin, err := a.provisioner.EnsureReady(ctx); err != nil {
			fmt.Fprintf(out, "✗ yt-dlp: %v\n", err)
			allGood = false
		} else {
			fmt.Fprintf(out, "✓ yt-dlp: %s\n", bin.Path)
		}

		ffmpeg := a.cfg.Tool.FFmpegPath
		if ffmpeg == "" {
			ffmpeg = "ffmpeg"
		}
		if path, err := exec.LookPath(ffmpeg); err != nil {
			fmt.Fprintln(out, "✗ ffmpeg: NOT FOUND")
			fmt.Fprintf(out, "  Install from: %s\n", ffmpegInstallURL)
			allGood = false
		} else {
			fmt.Fprintf(out, "✓ ffmpeg: %s\n", path)
		}

		fmt.Fprintln(out)
		if !allGood {
			return errors.New("some dependencies are missing")
		}
		fmt.Fprintln(out, "All dependencies are installed!")
		return nil
	},
}
