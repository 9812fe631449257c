package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var conflictsJSON bool

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List the conflicts of a request file",
	RunE:  runConflicts,
}

func init() {
	conflictsCmd.Flags().StringVarP(&requestPath, "file", "f", "", "request document (yaml or json)")
	conflictsCmd.Flags().BoolVar(&conflictsJSON, "json", false, "print json")
	_ = conflictsCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, _, res, err := optimizeFile(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	if conflictsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res.Conflicts)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSEVERITY\tDATE\tTEAMS\tJOBS\tAUTO\tSUGGESTION")
	for _, c := range res.Conflicts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			c.ID, c.Type, c.Severity, c.Date,
			strings.Join(c.TeamIDs, ","), strings.Join(c.JobIDs, ","),
			c.AutoResolvable, c.SuggestedResolution)
	}
	return tw.Flush()
}
