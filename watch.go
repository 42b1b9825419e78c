package main

import (
	"context"
	"errors"

	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rescan the project whenever watched files change",
		Long: `Watch the project tree and rerun the scan pipeline after each burst of
changes. Events are debounced, unchanged content is ignored and at most one
scan runs at a time. Stop with Ctrl-C.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(v)
			if err != nil {
				return err
			}
			p, err := newPipeline(a)
			if err != nil {
				return err
			}
			w, err := guardian.OpenWatcher(p.Root(), a.opts, p.ScanFunc())
			if err != nil {
				return err
			}
			defer w.Close()
			p.WithHashStore(w.HashStore())

			done := make(chan struct{})
			go func() {
				defer close(done)
				for t := range w.Triggers() {
					printTrigger(cmd, t)
				}
			}()

			cmd.Printf("Watching %s (debounce %s)\n", p.Root(), a.opts.DebounceWindow)
			err = w.Run(cmd.Context())
			<-done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Duration("debounce", v.GetDuration(debounceWindowKey), "quiet period before a batch of changes is scanned")
	bindFlagToConfig(v, cmd.Flags().Lookup("debounce"), debounceWindowKey)
	cmd.Flags().Bool("scan-on-start", v.GetBool(scanOnStartKey), "scan once before waiting for changes")
	bindFlagToConfig(v, cmd.Flags().Lookup("scan-on-start"), scanOnStartKey)
	return cmd
}

func printTrigger(cmd *cobra.Command, t guardian.ScanTrigger) {
	switch {
	case t.Err != nil && t.Terminal:
		cmd.PrintErrf("scan failed after %d attempts, dropping %d changes: %v\n", t.Attempt, len(t.Batch), t.Err)
	case t.Err != nil:
		cmd.PrintErrf("scan failed (attempt %d), retrying: %v\n", t.Attempt, t.Err)
	default:
		files := 0
		if t.Snapshot != nil {
			files = len(t.Snapshot.Files)
		}
		cmd.Printf("Rescanned after %d changes: %d files\n", len(t.Batch), files)
	}
}
