package cmd

import (
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/tsb/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing tsb configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

You can redirect this output to a file to create a configuration template:

  tsb config dump > .tsb.yaml

Environment variables use the TSB_ prefix and underscores for nesting.
Example: tsb.max_length -> TSB_TSB_MAX_LENGTH`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load("")
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return writeConfig(cmd.OutOrStdout(), cfg, true)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the configuration after applying the config file, environment and flags.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Decode(viper.GetViper())
		if err != nil {
			return err
		}
		return writeConfig(cmd.OutOrStdout(), cfg, false)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configShowCmd)
}

// writeConfig renders cfg as YAML with human readable durations and sizes.
func writeConfig(w io.Writer, cfg *config.Config, header bool) error {
	data, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if header {
		fmt.Fprintln(w, "# tsb Configuration File")
		fmt.Fprintln(w, "# =======================")
		fmt.Fprintln(w, "#")
		fmt.Fprintln(w, "# All values shown below are defaults.")
		fmt.Fprintln(w, "# Duration format: 30s, 5m, 1h")
		fmt.Fprintln(w, "# Size format: 512MiB, 10GiB")
		fmt.Fprintln(w, "#")
		fmt.Fprintln(w, "# Environment variable overrides:")
		fmt.Fprintln(w, "#   TSB_TSB_LOCATION, TSB_TSB_MAX_LENGTH")
		fmt.Fprintln(w, "#   TSB_STORAGE_BACKEND, TSB_STORAGE_MAX_CAPACITY")
		fmt.Fprintln(w, "#   TSB_LOGGING_LEVEL, TSB_LOGGING_FORMAT")
		fmt.Fprintln(w, "#")
		fmt.Fprintln(w)
	}
	_, err = w.Write(data)
	return err
}

// toMap converts a struct to a map keyed by mapstructure tags, formatting
// durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case config.Duration:
			result[key] = v.String()
		case time.Duration:
			result[key] = config.Duration(v).String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}
