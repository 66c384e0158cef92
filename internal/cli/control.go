package cli

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/marketsci/robynq/internal/config"
	"github.com/marketsci/robynq/internal/model"
)

func PauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setQueueStatus(cmd, model.QueueStatusPaused)
		},
	}
	addQueueFlags(cmd)
	return cmd
}

func ResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setQueueStatus(cmd, model.QueueStatusRunning)
		},
	}
	addQueueFlags(cmd)
	return cmd
}

func setQueueStatus(cmd *cobra.Command, status model.QueueStatus) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return applyQueueStatus(cfg, status)
}

func applyQueueStatus(cfg *config.Config, status model.QueueStatus) error {
	comps, err := newComponents(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	doc, err := comps.queues.Load(ctx, cfg.Queue.Name)
	if err != nil {
		return err
	}

	doc.Status = status
	if err := comps.queues.Save(ctx, cfg.Queue.Name, doc); err != nil {
		return err
	}

	log.Printf("[Queue] %s is now %s", cfg.Queue.Name, status)
	return nil
}
