package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/clipstash/clipstash/internal/output"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <video-id>",
	Short: "Abort a download and delete its local data",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp()
		defer a.Close()
		if err := a.Engine.Cancel(args[0]); err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		output.PrintSuccess("Download cancelled, local data removed")
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
