// File: cmd/validate.go
package cmd

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/device"
	"github.com/xkilldash9x/devicesweep/internal/reporting"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report every problem found",
		Args:  cobra.NoArgs,
		// Problems are reported here rather than by the root pre-run.
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			problems := validateConfig(cfg)
			return printValidation(cmd.OutOrStdout(), cfg, problems)
		},
	}
}

// validateConfig collects every problem instead of stopping at the first.
func validateConfig(cfg config.Interface) []string {
	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	if v, ok := cfg.(interface{ Validate() error }); ok {
		add(v.Validate())
	}
	plan, planErr := scenario.FromConfig(cfg)
	add(planErr)

	entries, err := device.Resolve(cfg.Devices())
	add(err)
	if planErr == nil && err == nil {
		add(checkArtifactNames(entries, plan.Scenarios))
	}
	for _, e := range entries {
		if e.Err != nil {
			add(fmt.Errorf("device %s: %w", e.Name, e.Err))
		}
	}

	for _, f := range cfg.Output().Formats {
		if !slices.Contains(reporting.Formats, f) {
			add(fmt.Errorf("output.formats: unsupported format %q", f))
		}
	}
	return problems
}

func printValidation(out io.Writer, cfg config.Interface, problems []string) error {
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintf(out, "  - %s\n", p)
		}
		return fmt.Errorf("configuration has %d problem(s)", len(problems))
	}
	n, m := len(cfg.Devices()), len(cfg.Scenarios())
	fmt.Fprintf(out, "configuration OK: %d devices x %d scenarios = %d outcomes against %s\n", n, m, n*m, cfg.Target().URL)
	return nil
}
