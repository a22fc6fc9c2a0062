package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"postforge/internal/config"
	"postforge/internal/models"
	"postforge/internal/schedule"
)

// newGateway builds the scheduler client from configuration. Tests replace it.
var newGateway = func(cfg *config.Config) schedule.Gateway {
	return schedule.NewHTTPGateway(schedule.HTTPConfig{
		BaseURL: cfg.SchedulerAPIURL,
		APIKey:  cfg.AgentAPIKey,
	})
}

// newScheduleCmd returns the schedule command group for the recurring job.
func newScheduleCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and toggle the recurring generation job",
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")

	cmd.AddCommand(newScheduleStatusCmd(&jsonOutput))
	cmd.AddCommand(newScheduleToggleCmd("pause", "Pause the recurring job"))
	cmd.AddCommand(newScheduleToggleCmd("resume", "Resume the recurring job"))
	cmd.AddCommand(newScheduleHistoryCmd(&jsonOutput))
	return cmd
}

// scheduleTarget loads configuration and returns the gateway and job ID.
func scheduleTarget() (schedule.Gateway, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return newGateway(cfg), cfg, nil
}

func newScheduleStatusCmd(jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the job is active and when it runs next",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, cfg, err := scheduleTarget()
			if err != nil {
				return err
			}
			status, err := gw.GetStatus(cmd.Context(), cfg.ScheduleID)
			if err != nil {
				return fmt.Errorf("get schedule status: %w", err)
			}

			if status.CronExpression == "" {
				status.CronExpression = cfg.ScheduleCron
			}
			if status.Timezone == "" {
				status.Timezone = cfg.ScheduleTimezone
			}
			st := schedule.State{
				ScheduleID:  cfg.ScheduleID,
				Status:      status,
				Description: schedule.CronToHuman(status.CronExpression),
			}

			if *jsonOutput {
				return writeIndentedJSON(cmd.OutOrStdout(), st)
			}
			return printStatus(cmd.OutOrStdout(), st, time.Now())
		},
	}
}

func printStatus(out io.Writer, st schedule.State, now time.Time) error {
	state := "paused"
	if st.Status.IsActive {
		state = "active"
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Schedule:\t%s\n", st.ScheduleID)
	fmt.Fprintf(w, "State:\t%s\n", state)
	fmt.Fprintf(w, "Runs:\t%s (%s)\n", st.Description, st.Status.Timezone)
	if d, ok := st.NextRunIn(now); ok {
		fmt.Fprintf(w, "Next run:\t%s (in %s)\n", st.Status.NextRun.Format(time.RFC3339), d.Round(time.Minute))
	}
	return w.Flush()
}

// newScheduleToggleCmd returns the pause or resume command.
func newScheduleToggleCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, cfg, err := scheduleTarget()
			if err != nil {
				return err
			}

			call := gw.Resume
			if action == "pause" {
				call = gw.Pause
			}
			if err := call(cmd.Context(), cfg.ScheduleID); err != nil {
				return fmt.Errorf("%s schedule: %w", action, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s: %sd\n", cfg.ScheduleID, action)
			return nil
		},
	}
}

func newScheduleHistoryCmd(jsonOutput *bool) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs of the job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			gw, cfg, err := scheduleTarget()
			if err != nil {
				return err
			}
			runs, err := gw.GetHistory(cmd.Context(), cfg.ScheduleID, limit)
			if err != nil {
				return fmt.Errorf("get run history: %w", err)
			}

			if *jsonOutput {
				return writeIndentedJSON(cmd.OutOrStdout(), runs)
			}

			return printHistory(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", schedule.DefaultHistoryLimit, "number of runs to list")
	return cmd
}

func printHistory(out io.Writer, runs []models.RunHistoryItem) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION\tERROR")
	failed := 0
	for _, r := range runs {
		duration := "-"
		switch {
		case r.Status == models.RunStatusRunning:
			duration = "running"
		case r.CompletedAt != nil:
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		errMsg := "-"
		if r.Failed() {
			failed++
			if errMsg = r.ErrorMessage; errMsg == "" {
				errMsg = "(no message)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), duration, errMsg)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d runs, %d failed\n", len(runs), failed)
	return err
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
