package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marketsci/robynq/internal/orchestrator"
)

func ProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process pending queue entries",
		Long: `Process loads the queue, finalizes entries whose remote execution
completed, and launches pending entries strictly in submission order.
One entry is advanced per tick; --count and --loop control how many
ticks run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			comps, err := newComponents(cfg)
			if err != nil {
				return err
			}

			count, _ := cmd.Flags().GetInt("count")
			loop, _ := cmd.Flags().GetBool("loop")
			cleanup, _ := cmd.Flags().GetBool("cleanup")

			processor := orchestrator.NewProcessor(
				comps.queues,
				comps.launcher,
				comps.verifier,
				comps.runner,
				nil, // verification runs inline in CLI mode
				cfg.Queue.Retention,
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, err = processor.Run(ctx, cfg.Queue.Name, count, loop, cleanup)
			return err
		},
	}

	addQueueFlags(cmd)
	addRunnerFlags(cmd)
	cmd.Flags().Int("count", 1, "number of ticks to run")
	cmd.Flags().Bool("loop", false, "tick until the queue has no pending entries")
	cmd.Flags().Bool("cleanup", false, "trim old terminal entries after the run")
	cmd.Flags().Int("retention", 0, "terminal entries to keep during cleanup")

	return cmd
}
