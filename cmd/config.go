package cmd

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

var errUnknownConfigKey = errors.New("unknown config key")

// applyConfigFile sets every flag of cmd that was not given on the command line from the
// YAML file at path. Keys are flag long names; list values feed slice flags one item at a time.
func applyConfigFile(cmd *cobra.Command, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(b, &values); err != nil {
		return fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	flags := cmd.Flags()
	for _, key := range keys {
		if key == "config" {
			continue
		}
		f := flags.Lookup(key)
		if f == nil {
			if definedOnRoot(cmd, key) {
				continue
			}
			return fmt.Errorf("%w: %s", errUnknownConfigKey, key)
		}
		if f.Changed {
			continue
		}
		if err := setFlag(flags, key, values[key]); err != nil {
			return err
		}
	}
	return nil
}

func setFlag(flags *pflag.FlagSet, name string, value interface{}) error {
	switch v := value.(type) {
	case nil:
	case []interface{}:
		for _, item := range v {
			if err := flags.Set(name, fmt.Sprint(item)); err != nil {
				return fmt.Errorf("invalid config value for %s: %w", name, err)
			}
		}
	default:
		if err := flags.Set(name, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("invalid config value for %s: %w", name, err)
		}
	}
	return nil
}

// definedOnRoot reports whether name is a flag of the root command, which subcommands do not inherit.
func definedOnRoot(cmd *cobra.Command, name string) bool {
	root := cmd.Root()
	return root.Flags().Lookup(name) != nil || root.PersistentFlags().Lookup(name) != nil
}
