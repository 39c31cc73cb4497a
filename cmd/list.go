package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clipstash/clipstash/internal/output"
	"github.com/clipstash/clipstash/utils"
)

var listYAML bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked downloads and their progress",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()
		records, err := a.Engine.List()
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		if listYAML {
			raw, err := yaml.Marshal(records)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			fmt.Print(string(raw))
			return
		}
		if len(records) == 0 {
			output.PrintDetail("Nothing tracked yet, run sync first")
			return
		}
		for _, rec := range records {
			progress := fmt.Sprintf("%s / ?", utils.FormatBytes(uint64(rec.DownloadedBytes)))
			if rec.TotalBytes > 0 {
				progress = fmt.Sprintf("%s / %s (%.0f%%)", utils.FormatBytes(uint64(rec.DownloadedBytes)), utils.FormatBytes(uint64(rec.TotalBytes)), rec.Fraction()*100)
			}
			fmt.Printf("  %-12s %-14s %s  %s\n", rec.VideoID, output.StatusBadge(rec.Status.String()), progress, rec.Video.Title)
			if rec.ErrorMessage != "" {
				output.PrintDetail("    " + rec.ErrorMessage)
			}
		}
	},
}

func init() {
	listCmd.Flags().BoolVar(&listYAML, "yaml", false, "Emit records as YAML")
	rootCmd.AddCommand(listCmd)
}
