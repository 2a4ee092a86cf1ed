package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"erpsync/internal/models"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printActions(w io.Writer, actions []models.PendingAction) error {
	if len(actions) == 0 {
		_, err := fmt.Fprintln(w, "no actions")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOPERATION\tENTITY\tENDPOINT\tCREATED\tRETRIES\tLAST ERROR")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Operation, a.Entity, a.Endpoint,
			a.CreatedAt.Local().Format(time.DateTime), a.RetryCount, a.LastError)
	}
	return tw.Flush()
}

func printSyncResult(w io.Writer, r *models.SyncResult) {
	fmt.Fprintf(w, "succeeded: %d, failed: %d", len(r.Succeeded), len(r.Failed))
	if len(r.DeadLettered) > 0 {
		fmt.Fprintf(w, ", dead-lettered: %d", len(r.DeadLettered))
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, ", not yet due: %d", len(r.Skipped))
	}
	fmt.Fprintf(w, " (%s)\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
