package sarif

// Types for the part of SARIF 2.1.0 a device sweep fills in. One Run holds a
// whole sweep. Each scenario that failed or errored on a device is a Result
// under a Rule keyed by scenario and status. Devices that never opened share
// one Rule. Screenshots and the target form are listed as run Artifacts so
// viewers can link results to them by index.
// Optional fields are pointers; required ones are values.

type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []*Run `json:"runs"`
}

// Run is one sweep. Properties carry the run id, driver, target and tallies.
type Run struct {
	Tool        *Tool         `json:"tool"`
	Invocations []*Invocation `json:"invocations,omitempty"`
	Artifacts   []*Artifact   `json:"artifacts,omitempty"`
	Results     []*Result     `json:"results"`
	Properties  *PropertyBag  `json:"properties,omitempty"`
}

type Tool struct {
	Driver *ToolComponent `json:"driver"`
}

// ToolComponent names the sweeper and holds the rules its results reference.
type ToolComponent struct {
	Name           string                 `json:"name"`
	Version        *string                `json:"version,omitempty"`
	InformationURI *string                `json:"informationUri,omitempty"`
	Rules          []*ReportingDescriptor `json:"rules,omitempty"`
}

// Invocation records when the sweep ran. ExecutionSuccessful is false when a
// device could not be swept at all.
type Invocation struct {
	ExecutionSuccessful bool    `json:"executionSuccessful"`
	StartTimeUTC        *string `json:"startTimeUtc,omitempty"`
	EndTimeUTC          *string `json:"endTimeUtc,omitempty"`
}

// Artifact is a file or page a result points at.
type Artifact struct {
	Location *ArtifactLocation `json:"location"`
	Roles    []ArtifactRole    `json:"roles,omitempty"`
	MimeType *string           `json:"mimeType,omitempty"`
}

// ArtifactRole values used by the sweep.
type ArtifactRole string

const (
	RoleAnalysisTarget ArtifactRole = "analysisTarget"
	RoleAttachment     ArtifactRole = "attachment"
)

// ReportingDescriptor is a rule: one per (scenario, status) that went wrong.
type ReportingDescriptor struct {
	ID               string                    `json:"id"`
	Name             *string                   `json:"name,omitempty"`
	ShortDescription *MultiformatMessageString `json:"shortDescription,omitempty"`
	FullDescription  *MultiformatMessageString `json:"fullDescription,omitempty"`
	Help             *MultiformatMessageString `json:"help,omitempty"`
	Properties       *PropertyBag              `json:"properties,omitempty"`
}

// Result is one non-passing (device, scenario) pair or one device failure.
type Result struct {
	RuleID     string       `json:"ruleId"`
	Message    *Message     `json:"message"`
	Level      Level        `json:"level,omitempty"`
	Locations  []*Location  `json:"locations,omitempty"`
	Properties *PropertyBag `json:"properties,omitempty"`
}

type Location struct {
	PhysicalLocation *PhysicalLocation `json:"physicalLocation,omitempty"`
	Message          *Message          `json:"message,omitempty"`
}

type PhysicalLocation struct {
	ArtifactLocation *ArtifactLocation `json:"artifactLocation,omitempty"`
}

// ArtifactLocation is a screenshot path or the target URL. Index points into
// Run.Artifacts when set.
type ArtifactLocation struct {
	URI   *string `json:"uri,omitempty"`
	Index *int    `json:"index,omitempty"`
}

type Message struct {
	Text *string `json:"text,omitempty"`
}

type MultiformatMessageString struct {
	Text     *string `json:"text"`
	Markdown *string `json:"markdown,omitempty"`
}

type PropertyBag map[string]interface{}

// Level maps outcome status: failed is error, errored is warning.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNote    Level = "note"
)
