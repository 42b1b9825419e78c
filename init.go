package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Someblueman/guardian/internal/guardian"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newInitCmd(v *viper.Viper) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default guardian.yaml configuration file",
		Long: `Create guardian.yaml in the current working directory populated with the
built-in defaults so it can be edited manually.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := filepath.Join(".", configFileName)
			if !force {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", target)
				} else if !errors.Is(err, os.ErrNotExist) {
					return err
				}
			}
			data, err := defaultConfigYAML(v)
			if err != nil {
				return err
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			cmd.Printf("Wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// defaultConfigYAML renders the default options plus the log section.
// Durations are written as strings such as "2s" so the file stays readable.
func defaultConfigYAML(v *viper.Viper) ([]byte, error) {
	raw, err := yaml.Marshal(guardian.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	doc := map[string]any{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}
	def := guardian.DefaultOptions()
	doc[debounceWindowKey] = def.DebounceWindow.String()
	doc[vcsTimeoutKey] = def.VCSTimeout.String()
	doc["log"] = map[string]any{
		"level":       v.GetString(logLevelKey),
		"max_size":    v.GetInt(logMaxSizeKey),
		"max_backups": v.GetInt(logMaxBackupsKey),
		"max_age":     v.GetInt(logMaxAgeKey),
		"compress":    v.GetBool(logCompressKey),
	}
	return yaml.Marshal(doc)
}
