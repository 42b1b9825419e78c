package main

import (
	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compare working tree changes with the latest plan",
		Long: `Classify the working tree as NO_CHANGES, NO_PLAN_FOR_CHANGES,
PLAN_VIOLATIONS or ON_TRACK by comparing git's changed files with the most
recently recorded plan.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			st, err := guardian.NewStatusTracker(a.root, nil, nil, a.opts).Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			renderStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}
