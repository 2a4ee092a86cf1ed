package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deadLettersCmd = &cobra.Command{
	Use:     "dead-letters",
	Aliases: []string{"dlq"},
	Short:   "List actions that exhausted their retries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), a.queue.DeadLetters())
		}
		return printActions(cmd.OutOrStdout(), a.queue.DeadLetters())
	},
}

var requeueCmd = &cobra.Command{
	Use:   "requeue <id>...",
	Short: "Move dead letters back to the tail of the queue",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if _, err := a.queue.Requeue(cmd.Context(), id); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: requeued\n", id)
		}
		return nil
	},
}

var discardCmd = &cobra.Command{
	Use:   "discard <id>...",
	Short: "Delete dead letters permanently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.queue.DiscardDeadLetter(cmd.Context(), id); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: discarded\n", id)
		}
		return nil
	},
}

func init() {
	deadLettersCmd.Flags().Bool("json", false, "print dead letters as JSON")
	deadLettersCmd.AddCommand(requeueCmd, discardCmd)
}
