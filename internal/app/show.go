package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent alert decisions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	audit, closeAudit, err := a.openAudit(ctx)
	if err != nil {
		return err
	}
	if audit == nil {
		return errors.New("database not configured; cannot show decisions")
	}
	if closeAudit != nil {
		defer closeAudit()
	}

	decisions, err := audit.ListRecentDecisions(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Fprintln(os.Stdout, "no decisions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tUser\tEvent\tAllowed\tReason")

	for _, d := range decisions {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%t\t%s\n",
			d.EvaluatedAt.UTC().Format(time.RFC3339),
			d.UserID,
			d.EventID,
			d.Allowed,
			d.Reason,
		)
	}

	writer.Flush()
	return nil
}
