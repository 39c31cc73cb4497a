package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/model"
	"github.com/clipstash/clipstash/internal/output"
)

var watchCmd = &cobra.Command{
	Use:   "watch [code]",
	Short: "Keep syncing with the catalog, resuming and notifying as it changes",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		code := accessCode(args)
		if code == "" {
			output.PrintError("No access code provided (argument or config)")
			os.Exit(1)
		}
		cfg.Catalog.AccessCode = code
		a := mustApp()
		defer a.Close()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events, unsubscribe := a.Bus.Subscribe()
		defer unsubscribe()
		go a.Watcher.Run(ctx)

		output.PrintInfo("Watching catalog, Ctrl-C to stop")
		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				output.PrintDetail("Stopping")
				return
			case ev := <-events:
				switch ev.Type {
				case model.EventVideoReady:
					output.PrintSuccess("Ready to download: " + ev.VideoID)
				case model.EventRemoved:
					output.PrintWarning("Removed from catalog: " + ev.VideoID)
				case model.EventCompleted:
					output.PrintSuccess("Downloaded: " + ev.VideoID)
				case model.EventFailed:
					output.PrintError(fmt.Sprintf("Failed: %s (%s)", ev.VideoID, ev.Kind))
				case model.EventOffline:
					output.PrintWarning("Offline, using cached catalog")
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
