package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/VerdantProject/verdant/pkg/engine"
	"github.com/VerdantProject/verdant/pkg/regression"
)

func evaluateCmd() *cobra.Command {
	var (
		file         string
		intensityVal float64
		region       string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate an energy measurement against its baseline",
		Long:  `Evaluate reads a measurement JSON file, scores it against the rolling per-workload baseline, and reports the regression severity and phase hotspots. Supply --intensity (or --region to resolve one) for CO2 figures.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(slog.LevelWarn)
			eng, _, _, closeStore, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer closeStore()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read measurement file: %w", err)
			}
			var m regression.Measurement
			if err := json.Unmarshal(data, &m); err != nil {
				return fmt.Errorf("parse measurement: %w", err)
			}

			ctx := context.Background()
			if intensityVal <= 0 && region != "" {
				intensityVal = eng.Intensity(ctx, region).Reading.Value
			}

			report, err := eng.EvaluateMeasurement(ctx, m, intensityVal)
			if err != nil {
				return err
			}

			switch outputFormat {
			case "json":
				return outputJSON(report)
			case "table":
				printReport(report)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Measurement JSON file (required)")
	cmd.Flags().Float64Var(&intensityVal, "intensity", 0, "Grid intensity in gCO2/kWh for CO2 figures")
	cmd.Flags().StringVar(&region, "region", "", "Resolve the intensity for this region instead")
	cmd.MarkFlagRequired("file")

	return cmd
}

func printReport(report engine.EvaluationReport) {
	res := report.Result

	printer := pterm.Success
	switch res.Severity {
	case regression.SeverityMinor:
		printer = pterm.Warning
	case regression.SeverityMajor, regression.SeverityCritical:
		printer = pterm.Error
	}

	if res.Seeded {
		pterm.Info.Printfln("First measurement for %s/%s; baseline seeded", res.Branch, res.Workload)
	} else {
		printer.Printfln("%s: %+.1f%% vs baseline", res.Severity, res.DeltaPercent)
	}
	pterm.Info.Printfln("Baseline: %.0f J over %d samples", report.Baseline.EnergyJoules, report.Baseline.Samples)

	if report.CO2Grams > 0 {
		pterm.Info.Printfln("CO2: %.2f g (%.1f phone charges, %.3f miles driven, %.2f streaming hours)",
			report.CO2Grams,
			report.Equivalents.PhoneCharges,
			report.Equivalents.MilesDriven,
			report.Equivalents.StreamingHours)
	}

	if len(res.Hotspots) > 0 {
		data := pterm.TableData{{"Phase", "Energy (J)", "% of Total"}}
		for _, h := range res.Hotspots {
			data = append(data, []string{
				h.Phase,
				fmt.Sprintf("%.0f", h.Joules),
				fmt.Sprintf("%.1f%%", h.PercentOfTotal),
			})
		}
		pterm.DefaultSection.Println("Hotspots")
		pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
	}
}
