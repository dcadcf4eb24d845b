package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/VerdantProject/verdant/pkg/engine"
)

func rankCmd() *cobra.Command {
	var scheduleWeight float64

	cmd := &cobra.Command{
		Use:   "rank [region...]",
		Short: "Rank candidate regions by carbon cost",
		Long:  `Rank resolves the current and forecasted grid intensity for each region and orders them best-first. With no arguments, all configured regions are ranked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(slog.LevelWarn)
			eng, _, _, closeStore, err := buildEngine(logger)
			if err != nil {
				return err
			}
			defer closeStore()

			ranked := eng.RankRegions(context.Background(), args, scheduleWeight)
			if len(ranked) == 0 {
				fmt.Println("No regions ranked; check the configured region profiles")
				return nil
			}

			switch outputFormat {
			case "json":
				return outputJSON(ranked)
			case "table":
				return rankTable(ranked)
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().Float64Var(&scheduleWeight, "weight", 1.0, "Schedule urgency weight")

	return cmd
}

func rankTable(ranked []engine.RankedRegion) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Append([]string{"Rank", "Region", "Score", "Intensity (g/kWh)", "Band", "Source", "Live"})

	for i, r := range ranked {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			r.Region,
			fmt.Sprintf("%.4f", r.RankValue),
			fmt.Sprintf("%.1f", r.Intensity.Value),
			string(r.Band),
			r.Intensity.Source,
			fmt.Sprintf("%t", r.Intensity.Realtime),
		})
	}

	table.Render()
	return nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
