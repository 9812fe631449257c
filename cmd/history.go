package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/history"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
)

var (
	historyConflict string
	historyOutcome  string
	historySince    time.Duration
	historyJSON     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the conflict resolution history store",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyConflict, "conflict-id", "", "only entries of this conflict")
	historyCmd.Flags().StringVar(&historyOutcome, "outcome", "", "successful, failed or reverted")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only entries applied within this duration")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print json")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	q := history.Query{ConflictID: historyConflict, Outcome: model.HistoryOutcome(historyOutcome)}
	if historySince > 0 {
		q.Start = time.Now().Add(-historySince)
	}
	entries, err := store.Query(ctx, q)
	if err != nil {
		return err
	}
	if historyJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONFLICT\tTYPE\tSTRATEGY\tOUTCOME\tAPPLIED BY\tAPPLIED AT")
	for _, h := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			h.ID, h.ConflictID, h.ConflictType, h.Strategy, h.Outcome, h.AppliedBy, h.AppliedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
