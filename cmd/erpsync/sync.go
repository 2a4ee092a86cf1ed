package main

import (
	"errors"
	"fmt"

	"erpsync/internal/worker"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Poll connectivity and replay the queue once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		out := cmd.OutOrStdout()

		if a.queue.Len() == 0 {
			fmt.Fprintln(out, "queue is empty")
			return nil
		}

		// a fresh process starts offline, so an online poll replays the queue itself
		online, result, err := a.trigger.Refresh(cmd.Context())
		if result == nil && err == nil {
			if !online {
				return errors.New("backend unreachable, actions stay queued")
			}
			result, err = a.trigger.SyncNow(cmd.Context())
			if errors.Is(err, worker.ErrOffline) {
				return errors.New("backend unreachable, actions stay queued")
			}
		}
		if result == nil {
			return err
		}

		printSyncResult(out, result)
		if err != nil {
			return err
		}
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d actions failed and remain queued", len(result.Failed))
		}
		return nil
	},
}
