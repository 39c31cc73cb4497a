package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/output"
	"github.com/clipstash/clipstash/utils"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove segment files left behind by untracked videos",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()
		records, err := a.Engine.List()
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		keep := make([]string, 0, len(records))
		for _, rec := range records {
			keep = append(keep, rec.VideoID)
		}
		if err := utils.CleanSegmentDir(cfg.SegmentDir(), keep); err != nil {
			output.PrintError("Error cleaning up segment files: " + err.Error())
			os.Exit(1)
		}
		output.PrintSuccess("Segment directory cleaned")
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
