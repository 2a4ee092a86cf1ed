package main

import (
	"fmt"
	"os"
	"time"

	"erpsync/internal/export"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:     "queue",
	Aliases: []string{"q"},
	Short:   "List pending actions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		if path, _ := cmd.Flags().GetString("export"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := export.WriteQueueReport(f, a.queue.Snapshot(), a.queue.DeadLetters(), time.Now()); err != nil {
				_ = f.Close()
				return fmt.Errorf("export queue: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue exported to %s\n", path)
			return nil
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), a.queue.Snapshot())
		}
		return printActions(cmd.OutOrStdout(), a.queue.Pending())
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Drop pending actions without replaying them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			removed, err := a.queue.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not queued\n", id)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: removed\n", id)
		}
		return nil
	},
}

func init() {
	queueCmd.Flags().Bool("json", false, "print the queue state as JSON")
	queueCmd.Flags().String("export", "", "write an XLSX report of the queue and dead letters to this path")
	queueCmd.AddCommand(queueRemoveCmd)
}
