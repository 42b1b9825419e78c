package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newScanCmd(v *viper.Viper) *cobra.Command {
	var check, force bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the project and write the snapshot and quality report",
		Long: `Scan the project root, then write snapshot.json, snapshot.paths and
quality.json to the state directory. Outputs that are already up to date are
left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			p, err := newPipeline(a)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if check {
				stale, err := p.IsStale(ctx)
				if err != nil {
					return err
				}
				if stale {
					cmd.Println("Guardian outputs are stale")
					return &exitError{code: 1}
				}
				cmd.Println("Guardian outputs are up to date")
				return nil
			}

			if force {
				res, err := p.Run(ctx)
				if err != nil {
					return err
				}
				printScanSummary(cmd, res)
				return nil
			}

			res, generated, err := p.EnsureUpToDate(ctx)
			if err != nil {
				return err
			}
			if !generated {
				cmd.Println("Guardian outputs are up to date")
				return nil
			}
			printScanSummary(cmd, res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check staleness only (exit 1 if stale)")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate even if outputs are up to date")
	return cmd
}
