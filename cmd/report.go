// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/observability"
	"github.com/xkilldash9x/devicesweep/internal/results"
)

type reportRequest struct {
	runID       string
	resultsPath string
	outputPath  string
	format      string
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var req reportRequest

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Render a report for a completed sweep",
		Long: `Loads a sweep either from a results file or, with --run, from the database,
and renders it as text, JSON or SARIF.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipValidation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runReport(ctx, observability.GetLogger(), cfg, req, provider)
		},
	}

	reportCmd.Flags().StringVar(&req.runID, "run", "", "load this run id from the database")
	reportCmd.Flags().StringVar(&req.resultsPath, "results", "", "results file to load (default: output.dir/output.results_file)")
	reportCmd.Flags().StringVarP(&req.outputPath, "output", "o", "", "output file path. If unset, the report is printed to stdout.")
	reportCmd.Flags().StringVarP(&req.format, "format", "f", "text", "report format: json, sarif, text")
	reportCmd.MarkFlagsMutuallyExclusive("run", "results")

	return reportCmd
}

// runReport contains the core, testable logic for generating a report.
func runReport(ctx context.Context, logger *zap.Logger, cfg config.Interface, req reportRequest, provider storeProvider) error {
	var res *results.Results
	var err error
	if req.runID != "" {
		res, err = loadStoredRun(ctx, cfg, req.runID, provider)
	} else {
		path := req.resultsPath
		if path == "" {
			path = cfg.Output().ResultsPath()
		}
		logger.Debug("Loading results file.", zap.String("path", path))
		res, err = results.Load(path)
	}
	if err != nil {
		return err
	}

	out := req.outputPath
	if out == "" {
		out = "stdout"
	}
	return writeReport(logger, res, req.format, out)
}

func loadStoredRun(ctx context.Context, cfg config.Interface, runID string, provider storeProvider) (*results.Results, error) {
	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	res, err := st.LoadRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return res, nil
}
