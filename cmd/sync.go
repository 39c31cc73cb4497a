package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/output"
	"github.com/clipstash/clipstash/utils"
)

var syncCmd = &cobra.Command{
	Use:   "sync [code]",
	Short: "Fetch the remote catalog and reconcile local downloads",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		code := accessCode(args)
		if code == "" {
			output.PrintError("No access code provided (argument or config)")
			os.Exit(1)
		}
		a := mustApp()
		defer a.Close()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Catalog.Timeout)
		defer cancel()
		videos, err := a.Catalog.FetchCatalog(ctx, code)
		if err != nil {
			output.PrintWarning("Catalog unreachable, keeping cached state: " + err.Error())
			os.Exit(1)
		}
		if err := a.Reconciler.Reconcile(videos); err != nil {
			output.PrintError("Reconciliation finished with errors: " + err.Error())
			os.Exit(1)
		}
		records, err := a.Engine.List()
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		output.PrintHeader(fmt.Sprintf("%d videos tracked", len(records)))
		for _, rec := range records {
			size := "size pending"
			if rec.TotalBytes > 0 {
				size = utils.FormatBytes(uint64(rec.TotalBytes))
			}
			flags := ""
			if rec.Video.IsOptimizing {
				flags = " (optimizing)"
			}
			fmt.Printf("  %-12s %-14s %10s  %s%s\n", rec.VideoID, output.StatusBadge(rec.Status.String()), size, rec.Video.Title, flags)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
