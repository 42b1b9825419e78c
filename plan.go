package main

import (
	"errors"
	"fmt"

	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPlanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Record and inspect change plans",
	}
	cmd.AddCommand(newPlanRecordCmd(v), newPlanCompleteCmd(v), newPlanListCmd(v))
	return cmd
}

func openPlans(a *app) *guardian.PlanStore {
	return guardian.OpenPlanStore(a.opts.StatePath(a.root, guardian.DefaultPlansFile))
}

func newPlanRecordCmd(v *viper.Viper) *cobra.Command {
	var (
		goal   string
		files  []string
		phases []string
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the files or phases the next change will touch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(files) > 0 && len(phases) > 0 {
				return errors.New("use either --files or --phases, not both")
			}
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			kind, scope := guardian.ScopeFiles, files
			if len(phases) > 0 {
				kind, scope = guardian.ScopePhases, phases
			}
			plan, err := openPlans(a).Record(goal, kind, scope)
			if err != nil {
				return err
			}
			cmd.Printf("Recorded plan %s\n", plan.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "what the change is for")
	cmd.Flags().StringSliceVarP(&files, "files", "f", nil, "files or directories in scope")
	cmd.Flags().StringSliceVar(&phases, "phases", nil, "phase ids in scope")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func newPlanCompleteCmd(v *viper.Viper) *cobra.Command {
	var files []string
	cmd := &cobra.Command{
		Use:   "complete <plan-id>",
		Short: "Attach the changed files to a plan",
		Long: `Attach the files that actually changed to a plan. Without --files the
working tree changes reported by git are used.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				st, err := guardian.NewStatusTracker(a.root, nil, nil, a.opts).Status(cmd.Context())
				if err != nil {
					return err
				}
				files = st.ChangedFiles
			}
			plan, err := openPlans(a).Complete(args[0], files)
			if err != nil {
				return err
			}
			cmd.Printf("Completed plan %s with %d files\n", plan.ID, len(plan.FilesChanged))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "files", "f", nil, "files that changed")
	return cmd
}

func newPlanListCmd(v *viper.Viper) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded plans, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			plans, err := openPlans(a).List()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), plans)
			}
			for _, p := range plans {
				state := "open"
				if p.Completed() {
					state = fmt.Sprintf("done, %d files", len(p.FilesChanged))
				}
				cmd.Printf("%s  %s  %s  [%s]\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04"), p.Goal, state)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print plans as JSON")
	return cmd
}
