package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/VerdantProject/verdant/pkg/engine"
	"github.com/VerdantProject/verdant/pkg/optimizer"
)

func scheduleCmd() *cobra.Command {
	var (
		workload   string
		region     string
		duration   time.Duration
		deadline   string
		portable   bool
		candidates []string
		weight     float64
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Decide when and where to run a workload",
		Long:  `Schedule evaluates the forecast for each candidate region and decides between running now, deferring to a cleaner window, or relocating the workload. The deadline accepts RFC3339 or a relative duration such as "6h".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(slog.LevelWarn)
			eng, _, _, closeStore, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer closeStore()

			deadlineAt, err := parseDeadline(deadline, time.Now().UTC())
			if err != nil {
				return err
			}

			resp, err := eng.Schedule(context.Background(), engine.ScheduleRequest{
				Workload:       workload,
				CurrentRegion:  region,
				Duration:       duration,
				Deadline:       deadlineAt,
				Portable:       portable,
				Candidates:     candidates,
				ScheduleWeight: weight,
			})
			if err != nil {
				return err
			}

			switch outputFormat {
			case "json":
				return outputJSON(resp)
			case "table":
				printDecision(resp)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVar(&workload, "workload", "", "Workload name")
	cmd.Flags().StringVar(&region, "region", "", "Current region code (required)")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "Expected run duration")
	cmd.Flags().StringVar(&deadline, "deadline", "6h", "Completion deadline (RFC3339 or relative, e.g. 6h)")
	cmd.Flags().BoolVar(&portable, "portable", false, "Workload may run in another region")
	cmd.Flags().StringSliceVar(&candidates, "candidates", nil, "Candidate regions (default: all configured)")
	cmd.Flags().Float64Var(&weight, "weight", 1.0, "Schedule urgency weight")
	cmd.MarkFlagRequired("region")

	return cmd
}

// parseDeadline accepts either an absolute RFC3339 timestamp or a
// duration relative to now.
func parseDeadline(s string, now time.Time) (time.Time, error) {
	if at, err := time.Parse(time.RFC3339, s); err == nil {
		return at.UTC(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("deadline %q is neither RFC3339 nor a duration", s)
	}
	return now.Add(d), nil
}

func printDecision(resp engine.ScheduleResponse) {
	d := resp.Decision

	style := pterm.NewStyle(pterm.FgLightGreen, pterm.Bold)
	if d.Kind == optimizer.KindRelocate {
		style = pterm.NewStyle(pterm.FgLightYellow, pterm.Bold)
	}
	pterm.DefaultHeader.WithBackgroundStyle(pterm.NewStyle(pterm.BgDarkGray)).
		WithTextStyle(style).
		Printfln("%s in %s", d.Kind, d.Region)

	pterm.Info.Printfln("Start:    %s", d.StartAt.Format(time.RFC3339))
	pterm.Info.Printfln("Expected: %.1f gCO2/kWh", d.ExpectedIntensity)
	if d.SavingsPercent > 0 {
		pterm.Info.Printfln("Savings:  %.1f%%", d.SavingsPercent)
	}
	pterm.Info.Printfln("Reason:   %s", d.Reason)
	if resp.PolicyRule != "" {
		pterm.Warning.Printfln("Adjusted by policy rule %q", resp.PolicyRule)
	}
	if resp.Degraded {
		pterm.Warning.Println("Based on static fallback intensity, not live data")
	}

	if len(resp.Ranked) > 0 {
		data := pterm.TableData{{"Region", "Score", "Intensity", "Band"}}
		for _, r := range resp.Ranked {
			data = append(data, []string{
				r.Region,
				fmt.Sprintf("%.4f", r.RankValue),
				fmt.Sprintf("%.1f", r.Intensity.Value),
				string(r.Band),
			})
		}
		pterm.DefaultSection.Println("Candidates")
		pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
	}
}
