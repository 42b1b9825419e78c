package main

import (
	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newQualityCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Report dead code, duplicate files and structure problems",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			report, err := guardian.NewQualityAnalyzer(a.opts).Analyze(cmd.Context(), a.root)
			if err != nil {
				return err
			}
			if err := guardian.WriteQualityReport(a.opts.StatePath(report.Root, a.opts.QualityFile), report); err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			findings := report.Findings()
			if len(findings) > 0 {
				renderFindingsTable(cmd.OutOrStdout(), findings)
			}
			renderQualitySummary(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().Float64("threshold", v.GetFloat64(duplicateThresholdKey), "duplicate similarity threshold in (0, 1]")
	bindFlagToConfig(v, cmd.Flags().Lookup("threshold"), duplicateThresholdKey)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
