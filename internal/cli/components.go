package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketsci/robynq/internal/client"
	"github.com/marketsci/robynq/internal/config"
	"github.com/marketsci/robynq/internal/store"
	"github.com/marketsci/robynq/internal/trainer"
)

// addQueueFlags registers the flags shared by every queue-touching
// command
func addQueueFlags(cmd *cobra.Command) {
	cmd.Flags().String("queue", "", "queue name")
	cmd.Flags().String("bucket", "", "output bucket for training results")
	cmd.Flags().String("control-bucket", "", "bucket holding queue documents and job configs")
}

// addRunnerFlags registers the remote execution target flags
func addRunnerFlags(cmd *cobra.Command) {
	cmd.Flags().String("project", "", "Cloud Run project id")
	cmd.Flags().String("region", "", "Cloud Run region")
	cmd.Flags().String("job", "", "Cloud Run job name")
}

// loadConfig loads configuration and applies any flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("queue") {
		cfg.Queue.Name, _ = flags.GetString("queue")
	}
	if flags.Changed("bucket") {
		cfg.Storage.OutputBucket, _ = flags.GetString("bucket")
	}
	if flags.Changed("control-bucket") {
		cfg.Storage.ControlBucket, _ = flags.GetString("control-bucket")
	}
	if flags.Changed("project") {
		cfg.CloudRun.Project, _ = flags.GetString("project")
	}
	if flags.Changed("region") {
		cfg.CloudRun.Region, _ = flags.GetString("region")
	}
	if flags.Changed("job") {
		cfg.CloudRun.Job, _ = flags.GetString("job")
	}
	if flags.Changed("retention") {
		cfg.Queue.Retention, _ = flags.GetInt("retention")
	}

	return cfg, nil
}

// components bundles the clients every command wires the same way
type components struct {
	storage  *client.GCSClient
	runner   *client.CloudRunClient
	queues   *store.QueueStore
	launcher *trainer.Launcher
	verifier *trainer.Verifier
}

func newComponents(cfg *config.Config) (*components, error) {
	storage, err := client.NewGCSClient(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	runner := client.NewCloudRunClient(&cfg.CloudRun)
	queues := store.NewQueueStore(storage, cfg.Storage.ControlBucket)
	launcher := trainer.NewLauncher(storage, runner, cfg.Storage.ControlBucket, cfg.Storage.OutputBucket)
	verifier := trainer.NewVerifier(
		storage,
		cfg.Storage.OutputBucket,
		time.Duration(cfg.Verify.IntervalSeconds)*time.Second,
		time.Duration(cfg.Verify.TimeoutSeconds)*time.Second,
	)

	return &components{
		storage:  storage,
		runner:   runner,
		queues:   queues,
		launcher: launcher,
		verifier: verifier,
	}, nil
}
