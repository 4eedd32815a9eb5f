package results

import (
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json sorts map keys like encoding/json so results files diff cleanly.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorKey holds a device-level failure next to that device's scenario outcomes.
const ErrorKey = "error"

var (
	// ErrDuplicateOutcome is returned when a (device, scenario) pair is recorded twice.
	ErrDuplicateOutcome = errors.New("outcome already recorded")
	ErrInvalidOutcome   = errors.New("invalid outcome")
)

// Status is the verdict for one (device, scenario) pair.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// TestOutcome is the verdict and evidence for one scenario on one device. It
// is never modified once recorded.
type TestOutcome struct {
	DeviceID   string
	ScenarioID string
	Status     Status
	Message    string
	// Screenshot is the path of the captured image, if any.
	Screenshot  string
	RedirectURL string
	// Matched is the text fragment that classified the outcome.
	Matched   string
	Kind      string
	StartedAt time.Time
	Duration  time.Duration
}

// wireOutcome is the on-disk shape. Device and scenario are the map keys.
type wireOutcome struct {
	Status      Status     `json:"status"`
	Message     string     `json:"message"`
	Screenshot  string     `json:"screenshot,omitempty"`
	RedirectURL string     `json:"redirectUrl,omitempty"`
	Matched     string     `json:"matched,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	DurationMs  int64      `json:"durationMs"`
}

func (o TestOutcome) MarshalJSON() ([]byte, error) {
	w := wireOutcome{
		Status:      o.Status,
		Message:     o.Message,
		Screenshot:  o.Screenshot,
		RedirectURL: o.RedirectURL,
		Matched:     o.Matched,
		Kind:        o.Kind,
		DurationMs:  o.Duration.Milliseconds(),
	}
	if !o.StartedAt.IsZero() {
		t := o.StartedAt.UTC()
		w.StartedAt = &t
	}
	return json.Marshal(w)
}

func (o *TestOutcome) UnmarshalJSON(data []byte) error {
	var w wireOutcome
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = TestOutcome{
		DeviceID:    o.DeviceID,
		ScenarioID:  o.ScenarioID,
		Status:      w.Status,
		Message:     w.Message,
		Screenshot:  w.Screenshot,
		RedirectURL: w.RedirectURL,
		Matched:     w.Matched,
		Kind:        w.Kind,
		Duration:    time.Duration(w.DurationMs) * time.Millisecond,
	}
	if w.StartedAt != nil {
		o.StartedAt = *w.StartedAt
	}
	return nil
}

// Run describes one sweep. It is not part of the results file.
type Run struct {
	ID         string
	Driver     string
	Target     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Summary counts outcomes by status.
type Summary struct {
	Total        int
	Passed       int
	Failed       int
	Errored      int
	DeviceErrors int
}

// OK reports whether every outcome passed and no device failed.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0 && s.DeviceErrors == 0
}
