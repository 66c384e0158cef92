package cli

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "robynq",
	Short:        "Queue orchestrator for Robyn training jobs",
	SilenceUsage: true,
}

func Execute() {
	rootCmd.AddCommand(ProcessCmd())
	rootCmd.AddCommand(EnqueueCmd())
	rootCmd.AddCommand(ListCmd())
	rootCmd.AddCommand(PauseCmd())
	rootCmd.AddCommand(ResumeCmd())
	rootCmd.AddCommand(ServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
