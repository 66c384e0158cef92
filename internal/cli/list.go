package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func ListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the queue document entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			comps, err := newComponents(cfg)
			if err != nil {
				return err
			}

			doc, err := comps.queues.Load(context.Background(), cfg.Queue.Name)
			if err != nil {
				return err
			}

			fmt.Printf("queue %s (%s), %d entries\n", cfg.Queue.Name, doc.Status, len(doc.Entries))

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tRESULT PREFIX\tUPDATED\tNOTE")
			for _, e := range doc.Entries {
				note := e.Verification
				if e.Error != nil {
					note = *e.Error
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					e.ID, e.Status, e.ResultPrefix, e.UpdatedAt.Format("2006-01-02 15:04:05"), note)
			}
			return w.Flush()
		},
	}

	addQueueFlags(cmd)
	return cmd
}
