// internal/reporting/text_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/xkilldash9x/devicesweep/internal/results"
)

var statusColors = map[results.Status]*color.Color{
	results.StatusPass:  color.New(color.FgGreen, color.Bold),
	results.StatusFail:  color.New(color.FgRed, color.Bold),
	results.StatusError: color.New(color.FgYellow, color.Bold),
}

// TextReporter prints a per-pair table and a one-line summary.
type TextReporter struct {
	writer io.WriteCloser
	color  bool
	res    *results.Results
}

// NewTextReporter colors statuses only when writing to a terminal.
func NewTextReporter(writer io.WriteCloser) *TextReporter {
	_, stdout := writer.(*nopWriteCloser)
	return &TextReporter{writer: writer, color: stdout && !color.NoColor}
}

func (r *TextReporter) Write(res *results.Results) error {
	r.res = res
	return nil
}

func (r *TextReporter) Close() error {
	var writeErr error
	if r.res != nil {
		writeErr = r.render(r.res)
	}
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write text report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}

func (r *TextReporter) status(s results.Status) string {
	label := strings.ToUpper(string(s))
	if c, ok := statusColors[s]; ok && r.color {
		return c.Sprint(label)
	}
	return label
}

func (r *TextReporter) render(res *results.Results) error {
	run := res.Run()
	if run.ID != "" {
		if _, err := fmt.Fprintf(r.writer, "Run %s against %s (%s)\n\n", run.ID, run.Target, run.Driver); err != nil {
			return err
		}
	}

	tw := tabwriter.NewWriter(r.writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tSCENARIO\tSTATUS\tDETAIL")

	byDevice := make(map[string][]results.TestOutcome)
	for _, o := range res.Outcomes() {
		byDevice[o.DeviceID] = append(byDevice[o.DeviceID], o)
	}
	for _, d := range res.Devices() {
		for _, o := range byDevice[d] {
			detail := o.Message
			if o.Screenshot != "" {
				detail += " [" + o.Screenshot + "]"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d, o.ScenarioID, r.status(o.Status), detail)
		}
		if msg, ok := res.DeviceError(d); ok {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d, "-", r.status(results.StatusError), msg)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := res.Summary()
	_, err := fmt.Fprintf(r.writer, "\n%d passed, %d failed, %d errored, %d device errors (%d outcomes)\n",
		s.Passed, s.Failed, s.Errored, s.DeviceErrors, s.Total)
	return err
}
