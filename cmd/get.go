package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/downloader"
	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/internal/output"
	"github.com/clipstash/clipstash/utils"
)

var getCmd = &cobra.Command{
	Use:   "get <video-id>",
	Short: "Download a tracked video (resumes partial downloads; Ctrl-C pauses)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		videoID := args[0]
		a := mustApp()
		defer a.Close()

		events, unsubscribe := a.Bus.Subscribe()
		defer unsubscribe()
		if err := a.Engine.Start(videoID); err != nil {
			switch {
			case errors.Is(err, downloader.ErrAlreadyComplete):
				output.PrintSuccess("Already downloaded")
				return
			case errors.Is(err, downloader.ErrStillOptimizing):
				output.PrintWarning("Video is still optimizing on the server, try again later")
			case errors.Is(err, downloader.ErrUnknownVideo):
				output.PrintError("Unknown video id, run sync first")
			default:
				output.PrintError(err.Error())
			}
			os.Exit(1)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		defer signal.Stop(sigCh)
		// Speed is measured from this session's first progress event, so
		// a resumed download does not count previously fetched bytes.
		transferStart := time.Now()
		baseBytes := int64(-1)
		for {
			select {
			case <-sigCh:
				a.Engine.Pause(videoID)
				fmt.Println()
				output.PrintWarning("Paused, partial data kept for resume")
				return
			case ev := <-events:
				if ev.VideoID != videoID {
					continue
				}
				switch ev.Type {
				case model.EventProgress:
					if baseBytes < 0 {
						baseBytes = ev.DownloadedBytes
						transferStart = time.Now()
					}
					bar := output.ProgressBar(ev.DownloadedBytes, ev.TotalBytes, 30)
					total := "?"
					if ev.TotalBytes > 0 {
						total = utils.FormatBytes(uint64(ev.TotalBytes))
					}
					speed := utils.FormatSpeed(ev.DownloadedBytes-baseBytes, time.Since(transferStart).Seconds())
					fmt.Printf("\r%s %s / %s  %s   ", bar, utils.FormatBytes(uint64(ev.DownloadedBytes)), total, speed)
				case model.EventCompleted:
					fmt.Println()
					output.PrintSuccess("Saved to " + ev.OutputPath)
					return
				case model.EventFailed:
					fmt.Println()
					output.PrintError(fmt.Sprintf("Download failed (%s): %s", ev.Kind, ev.Message))
					output.PrintDetail("Partial data kept; run get again to retry")
					os.Exit(1)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
