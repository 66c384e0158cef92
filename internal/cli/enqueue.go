package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/marketsci/robynq/internal/store"
)

func EnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Append jobs to a queue from a JSON file",
		Long: `Enqueue reads a JSON array of parameter dictionaries and appends
one PENDING entry per dictionary, in file order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			comps, err := newComponents(cfg)
			if err != nil {
				return err
			}

			file, _ := cmd.Flags().GetString("file")
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			var jobs []map[string]interface{}
			if err := json.Unmarshal(data, &jobs); err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}
			if len(jobs) == 0 {
				return fmt.Errorf("%s contains no jobs", file)
			}

			ctx := context.Background()
			doc, err := comps.queues.Load(ctx, cfg.Queue.Name)
			if err != nil {
				return err
			}

			for _, params := range jobs {
				entry := store.Append(doc, params)
				log.Printf("[Queue] %s: enqueued entry %d", cfg.Queue.Name, entry.ID)
			}

			return comps.queues.Save(ctx, cfg.Queue.Name, doc)
		},
	}

	addQueueFlags(cmd)
	cmd.Flags().String("file", "", "path to a JSON array of job parameter dictionaries")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
