package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/VerdantProject/verdant/pkg/carbon"
)

func convertCmd() *cobra.Command {
	var (
		joules       float64
		intensityVal float64
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an energy figure to CO2 and everyday equivalents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if joules <= 0 {
				return fmt.Errorf("--joules must be positive")
			}
			if intensityVal <= 0 {
				return fmt.Errorf("--intensity must be positive")
			}

			grams := carbon.ToGrams(joules, intensityVal)
			eq := carbon.ToEquivalents(grams)
			band := carbon.IntensityBand(intensityVal)

			switch outputFormat {
			case "json":
				return outputJSON(map[string]any{
					"joules":              joules,
					"intensity_g_per_kwh": intensityVal,
					"band":                band,
					"co2_grams":           grams,
					"equivalents":         eq,
				})
			case "table":
				pterm.Info.Printfln("%.0f J at %.0f gCO2/kWh (%s band)", joules, intensityVal, band)
				pterm.Info.Printfln("CO2: %.2f g", grams)
				pterm.Info.Printfln("  %.2f phone charges", eq.PhoneCharges)
				pterm.Info.Printfln("  %.4f miles driven", eq.MilesDriven)
				pterm.Info.Printfln("  %.2f streaming hours", eq.StreamingHours)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", outputFormat)
			}
		},
	}

	cmd.Flags().Float64Var(&joules, "joules", 0, "Energy in joules (required)")
	cmd.Flags().Float64Var(&intensityVal, "intensity", 0, "Grid intensity in gCO2/kWh (required)")
	cmd.MarkFlagRequired("joules")
	cmd.MarkFlagRequired("intensity")

	return cmd
}
