// internal/reporting/sarif_reporter.go
package reporting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/observability"
	"github.com/xkilldash9x/devicesweep/internal/reporting/sarif"
	"github.com/xkilldash9x/devicesweep/internal/results"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "devicesweep"
	ToolInfoURI  = "https://github.com/xkilldash9x/devicesweep"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	deviceRuleID = "DEVICESWEEP-DEVICE-UNAVAILABLE"
)

// ruleIDSanitizer replaces characters not typically safe or allowed in SARIF Rule IDs.
// Alphanumerics, underscore and dot are kept; every other run becomes one hyphen.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// RuleFingerprint identifies a rule definition by content.
type RuleFingerprint string

// calculateFingerprint hashes the defining characteristics of a non-passing
// outcome: which scenario and how it went wrong. Devices share rules.
func calculateFingerprint(o results.TestOutcome) RuleFingerprint {
	h := sha1.New()
	_, _ = fmt.Fprintf(h, "%s\x00%s", o.ScenarioID, o.Status)
	return RuleFingerprint(hex.EncodeToString(h.Sum(nil)))
}

// SARIFReporter implements the Reporter interface for the SARIF 2.1.0 format.
// Only failed and errored outcomes, and device failures, become results.
// It is thread safe.
type SARIFReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	log    *sarif.Log
	// mu protects the log structure and the maps.
	mu                 sync.Mutex
	rulesByFingerprint map[RuleFingerprint]string
	// ruleIDUsage counts uses of a base Rule ID so collisions get a suffix.
	ruleIDUsage map[string]int
	// artifactIndex maps a URI to its position in run.artifacts.
	artifactIndex map[string]int
}

// NewSARIFReporter creates a new reporter that writes SARIF output.
func NewSARIFReporter(writer io.WriteCloser, toolVersion string) *SARIFReporter {
	logger := observability.GetLogger().Named("sarif_reporter")
	log := &sarif.Log{
		Version: SARIFVersion,
		Schema:  SARIFSchema,
		Runs: []*sarif.Run{
			{
				Tool: &sarif.Tool{
					Driver: &sarif.ToolComponent{
						Name:           ToolName,
						Version:        pString(toolVersion),
						InformationURI: pString(ToolInfoURI),
						// Empty, not nil, so the JSON is [] rather than null.
						Rules: []*sarif.ReportingDescriptor{},
					},
				},
				Results: []*sarif.Result{},
			},
		},
	}

	return &SARIFReporter{
		writer:             writer,
		logger:             logger,
		log:                log,
		rulesByFingerprint: make(map[RuleFingerprint]string),
		ruleIDUsage:        make(map[string]int),
		artifactIndex:      make(map[string]int),
	}
}

// Write converts the non-passing outcomes of a sweep into SARIF results.
func (r *SARIFReporter) Write(res *results.Results) error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	run := r.log.Runs[0]
	meta := res.Run()
	s := res.Summary()
	run.Invocations = append(run.Invocations, &sarif.Invocation{
		ExecutionSuccessful: s.DeviceErrors == 0,
		StartTimeUTC:        pTime(meta.StartedAt),
		EndTimeUTC:          pTime(meta.FinishedAt),
	})
	run.Properties = &sarif.PropertyBag{
		"runId":  meta.ID,
		"driver": meta.Driver,
		"target": meta.Target,
		"passed": s.Passed,
		"total":  s.Total,
	}

	count := 0
	for _, o := range res.Outcomes() {
		if o.Status == results.StatusPass {
			continue
		}
		ruleID := r.ensureRule(o)
		run.Results = append(run.Results, &sarif.Result{
			RuleID:    ruleID,
			Message:   &sarif.Message{Text: pString(fmt.Sprintf("%s on %s: %s", o.ScenarioID, o.DeviceID, o.Message))},
			Level:     mapStatusToSARIFLevel(o.Status),
			Locations: r.createLocations(o, meta.Target),
			Properties: &sarif.PropertyBag{
				"device":   o.DeviceID,
				"scenario": o.ScenarioID,
				"status":   string(o.Status),
				"kind":     o.Kind,
			},
		})
		count++
	}

	for _, d := range res.Devices() {
		msg, ok := res.DeviceError(d)
		if !ok {
			continue
		}
		r.ensureDeviceRule()
		run.Results = append(run.Results, &sarif.Result{
			RuleID:     deviceRuleID,
			Message:    &sarif.Message{Text: pString(fmt.Sprintf("device %s: %s", d, msg))},
			Level:      sarif.LevelError,
			Properties: &sarif.PropertyBag{"device": d},
		})
		count++
	}

	if count > 0 {
		r.logger.Debug("Wrote outcomes to SARIF buffer",
			zap.Int("results_count", count),
			zap.Duration("duration_ms", time.Since(startTime)),
		)
	}
	return nil
}

// Close finalizes the SARIF log and writes it to the output writer.
func (r *SARIFReporter) Close() error {
	startTime := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var resultsCount, rulesCount int
	if len(r.log.Runs) > 0 && r.log.Runs[0] != nil {
		resultsCount = len(r.log.Runs[0].Results)
		if r.log.Runs[0].Tool != nil && r.log.Runs[0].Tool.Driver != nil {
			rulesCount = len(r.log.Runs[0].Tool.Driver.Rules)
		}
	}

	r.logger.Info("Finalizing SARIF report",
		zap.Int("total_results", resultsCount),
		zap.Int("total_rules", rulesCount),
	)

	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")

	encodeErr := encoder.Encode(r.log)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(encodeErr))
		return fmt.Errorf("failed to encode SARIF output: %w", encodeErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Successfully wrote SARIF report",
		zap.Duration("duration_ms", time.Since(startTime)),
	)
	return nil
}

// sanitizeRuleName creates a standardized base name for the rule ID.
func (r *SARIFReporter) sanitizeRuleName(name string) string {
	if name == "" {
		return "UNNAMED-SCENARIO"
	}
	sanitizedName := strings.ToUpper(name)
	sanitizedName = ruleIDSanitizer.ReplaceAllString(sanitizedName, "-")
	sanitizedName = strings.Trim(sanitizedName, "-")
	if sanitizedName == "" {
		return "UNKNOWN-SCENARIO"
	}
	return sanitizedName
}

// ensureRule ensures a unique rule definition exists for the outcome and returns its ID.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureRule(o results.TestOutcome) string {
	fingerprint := calculateFingerprint(o)
	if ruleID, exists := r.rulesByFingerprint[fingerprint]; exists {
		return ruleID
	}

	baseRuleID := "DEVICESWEEP-" + r.sanitizeRuleName(o.ScenarioID)
	if o.Status == results.StatusError {
		baseRuleID += "-ERROR"
	}

	usageCount := r.ruleIDUsage[baseRuleID]
	r.ruleIDUsage[baseRuleID] = usageCount + 1

	finalRuleID := baseRuleID
	if usageCount > 0 {
		finalRuleID = fmt.Sprintf("%s-%d", baseRuleID, usageCount)
		r.logger.Debug("Rule ID collision detected, generated new ID with suffix",
			zap.String("base_id", baseRuleID),
			zap.String("final_id", finalRuleID),
		)
	}

	r.logger.Debug("Registering new SARIF rule definition", zap.String("rule_id", finalRuleID))

	short := fmt.Sprintf("Scenario %s failed", o.ScenarioID)
	full := fmt.Sprintf("The form did not react as scenario %s expects.", o.ScenarioID)
	help := "Compare the screenshot with the expected validation behaviour and check the outcome patterns."
	if o.Status == results.StatusError {
		short = fmt.Sprintf("Scenario %s could not run", o.ScenarioID)
		full = fmt.Sprintf("An interaction in scenario %s failed before the outcome could be judged.", o.ScenarioID)
		help = "Check the step candidates against the current page; the form may have changed."
	}
	markdownHelp := fmt.Sprintf("**Scenario:** %s\n\n**Description:**\n%s\n\n**Next step:**\n%s", o.ScenarioID, full, help)

	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               finalRuleID,
		Name:             pString(o.ScenarioID),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(short)},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString(full)},
		Help: &sarif.MultiformatMessageString{
			Text:     pString(help),
			Markdown: pString(markdownHelp),
		},
		Properties: &sarif.PropertyBag{
			"tags":      []string{"ui", "devicesweep", string(o.Status)},
			"precision": "medium",
		},
	})
	r.rulesByFingerprint[fingerprint] = finalRuleID
	return finalRuleID
}

// ensureDeviceRule registers the rule shared by device-level failures.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureDeviceRule() {
	if r.ruleIDUsage[deviceRuleID] > 0 {
		return
	}
	r.ruleIDUsage[deviceRuleID] = 1
	driver := r.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               deviceRuleID,
		Name:             pString("device-unavailable"),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString("Device could not be swept")},
		FullDescription:  &sarif.MultiformatMessageString{Text: pString("The device profile could not be resolved or its browser context failed.")},
		Properties:       &sarif.PropertyBag{"tags": []string{"ui", "devicesweep", "device"}},
	})
}

// createLocations points at the screenshot when there is one, the target otherwise.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) createLocations(o results.TestOutcome, target string) []*sarif.Location {
	uri, msg := target, fmt.Sprintf("Observed on %s", o.DeviceID)
	role, mime := sarif.RoleAnalysisTarget, "text/html"
	if o.Screenshot != "" {
		uri = o.Screenshot
		msg = fmt.Sprintf("Screenshot of %s on %s", o.ScenarioID, o.DeviceID)
		role, mime = sarif.RoleAttachment, "image/png"
	}
	if uri == "" {
		return nil
	}
	idx := r.ensureArtifact(uri, role, mime)
	return []*sarif.Location{{
		PhysicalLocation: &sarif.PhysicalLocation{
			ArtifactLocation: &sarif.ArtifactLocation{URI: pString(uri), Index: &idx},
		},
		Message: &sarif.Message{Text: pString(msg)},
	}}
}

// ensureArtifact lists uri once in run.artifacts and returns its index.
// NOTE: Must be called while holding the mutex.
func (r *SARIFReporter) ensureArtifact(uri string, role sarif.ArtifactRole, mime string) int {
	if idx, ok := r.artifactIndex[uri]; ok {
		return idx
	}
	run := r.log.Runs[0]
	idx := len(run.Artifacts)
	run.Artifacts = append(run.Artifacts, &sarif.Artifact{
		Location: &sarif.ArtifactLocation{URI: pString(uri)},
		Roles:    []sarif.ArtifactRole{role},
		MimeType: pString(mime),
	})
	r.artifactIndex[uri] = idx
	return idx
}

// mapStatusToSARIFLevel: a failed expectation is an error, a scenario that
// could not run is a warning.
func mapStatusToSARIFLevel(status results.Status) sarif.Level {
	switch status {
	case results.StatusFail:
		return sarif.LevelError
	case results.StatusError:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value. Helper for optional SARIF fields.
func pString(s string) *string {
	return &s
}

func pTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	return pString(t.UTC().Format(time.RFC3339))
}
