// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/devicesweep/internal/results"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Formats lists the supported report formats.
var Formats = []string{"json", "sarif", "text"}

// Reporter defines the interface for writing sweep results to an output.
type Reporter interface {
	// Write adds the results of a sweep to the report.
	Write(res *results.Results) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	switch format {
	case "json", "sarif", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory for %s: %w", outputPath, err)
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	switch format {
	case "sarif":
		return NewSARIFReporter(writer, toolVersion), nil
	case "json":
		return NewJSONReporter(writer), nil
	default:
		return NewTextReporter(writer), nil
	}
}

// DefaultPath is where a format's report goes: results.sarif under dir for
// sarif, standard output otherwise. The results file itself is always saved
// separately.
func DefaultPath(format, dir string) string {
	if format == "sarif" {
		return filepath.Join(dir, "results.sarif")
	}
	return "stdout"
}

// JSONReporter writes the results file shape: device, then scenario, then outcome.
type JSONReporter struct {
	writer io.WriteCloser
	res    *results.Results
}

func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: writer}
}

// Write keeps res for Close. Only the last results written are reported.
func (r *JSONReporter) Write(res *results.Results) error {
	r.res = res
	return nil
}

func (r *JSONReporter) Close() error {
	var encodeErr error
	if r.res != nil {
		data, err := json.MarshalIndent(r.res, "", "  ")
		if err == nil {
			_, err = r.writer.Write(append(data, '\n'))
		}
		encodeErr = err
	}
	closeErr := r.writer.Close()
	if encodeErr != nil {
		return fmt.Errorf("failed to encode results: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
