package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanlister/thinktank-installation-scheduler-sub005/app"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/core/model"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/pkg/export"
	"github.com/jordanlister/thinktank-installation-scheduler-sub005/pkg/request"
)

var (
	requestPath string
	outFormat   string
	outPath     string
	sendNotify  bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Optimize a request file and print the schedule",
	RunE:  runOptimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&requestPath, "file", "f", "", "request document (yaml or json)")
	optimizeCmd.Flags().StringVar(&outFormat, "format", "json", "output format: json, csv or result")
	optimizeCmd.Flags().StringVarP(&outPath, "output", "o", "", "write the output to a file instead of stdout")
	optimizeCmd.Flags().BoolVar(&sendNotify, "notify", false, "send the schedules to the teams over mqtt")
	_ = optimizeCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(optimizeCmd)
}

// optimizeFile loads the request, applies the configured defaults and runs
// one optimization pass on a fresh service.
func optimizeFile(ctx context.Context) (*app.Service, model.SchedulingRequest, model.SchedulingResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, model.SchedulingRequest{}, model.SchedulingResult{}, err
	}
	dec := request.NewDecoder()
	dec.Defaults = cfg.Scheduling.Apply
	req, err := dec.LoadFile(requestPath)
	if err != nil {
		return nil, req, model.SchedulingResult{}, fmt.Errorf("load request: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return nil, req, model.SchedulingResult{}, err
	}
	res, err := svc.Scheduler.OptimizeSchedule(ctx, req)
	if err != nil {
		_ = svc.Close()
		return nil, req, res, err
	}
	return svc, req, res, nil
}

func output(cmd *cobra.Command) (io.Writer, func() error, error) {
	if outPath == "" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func runOptimize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, req, res, err := optimizeFile(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	w, closeOut, err := output(cmd)
	if err != nil {
		return err
	}
	switch outFormat {
	case "json":
		err = export.WriteJSON(w, res.ScheduleByDate)
	case "csv":
		err = export.WriteCSV(w, res.ScheduleByDate)
	case "result":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		err = enc.Encode(res)
	default:
		err = fmt.Errorf("unknown format %q", outFormat)
	}
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	m := res.OptimizationMetrics
	fmt.Fprintf(cmd.ErrOrStderr(), "assigned %d, unassigned %d, conflicts %d, travel %.1f mi, utilization %.0f%%\n",
		m.AssignedJobs, m.UnassignedJobs, len(res.Conflicts), m.TotalTravelDistance, m.UtilizationRate*100)

	if sendNotify {
		rep, err := svc.Notify(ctx, req, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "notified %d schedules, %d acknowledged\n", rep.Sent, rep.Acknowledged)
	}
	return nil
}
