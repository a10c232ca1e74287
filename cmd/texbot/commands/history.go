package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	tberrors "git.home.luguber.info/inful/texbot/internal/errors"
	"git.home.luguber.info/inful/texbot/internal/eventstore"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit   int    `short:"n" help:"Number of most recent requests to list" default:"20"`
	Request string `short:"r" help:"Show one request in full (JSON)"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config, false)
	if err != nil {
		return err
	}
	if cfg.History.Database == "" {
		return tberrors.ConfigRequired("history.database").
			WithUserMessage("history.database is not set; request history is disabled")
	}
	store, err := eventstore.NewSQLiteStore(cfg.History.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	return RunHistory(context.Background(), store, h.Limit, h.Request, os.Stdout)
}

// RunHistory prints either one request summary as JSON or a table of recent ones.
func RunHistory(ctx context.Context, store eventstore.Store, limit int, requestID string, w io.Writer) error {
	if requestID != "" {
		summary, err := eventstore.GetRequest(ctx, store, requestID)
		if err != nil {
			return err
		}
		if summary == nil {
			return tberrors.NotFound("request", requestID).
				WithUserMessage(fmt.Sprintf("No request %s in the history.", requestID))
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	if limit <= 0 {
		return tberrors.ValidationFailed("--limit", "must be positive")
	}
	summaries, err := eventstore.ListRequests(ctx, store, limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tREQUEST\tFILE\tSTATUS\tOUTCOME\tPAGES\tDURATION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%dms\n",
			s.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
			s.RequestID, s.FileName, s.Status, s.Outcome, s.Pages, s.DurationMS)
	}
	return tw.Flush()
}
