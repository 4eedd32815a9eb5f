package results

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

type pairKey struct{ device, scenario string }

// Results accumulates outcomes for a sweep. It is safe for concurrent use and
// is passed explicitly; there is no package-level instance.
type Results struct {
	mu         sync.RWMutex
	run        Run
	outcomes   []TestOutcome
	index      map[pairKey]int
	devices    []string
	deviceErrs map[string]string
}

// New returns an empty accumulator for run.
func New(run Run) *Results {
	return &Results{
		run:        run,
		index:      make(map[pairKey]int),
		deviceErrs: make(map[string]string),
	}
}

func (r *Results) Run() Run {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.run
}

// Finish stamps the run's end time.
func (r *Results) Finish(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run.FinishedAt = at
}

func (r *Results) touchDevice(device string) {
	for _, d := range r.devices {
		if d == device {
			return
		}
	}
	r.devices = append(r.devices, device)
}

// Record appends o. Each (device, scenario) pair may be recorded once.
func (r *Results) Record(o TestOutcome) error {
	if o.DeviceID == "" || o.ScenarioID == "" {
		return fmt.Errorf("%w: device and scenario are required", ErrInvalidOutcome)
	}
	if o.ScenarioID == ErrorKey {
		return fmt.Errorf("%w: scenario id %q is reserved", ErrInvalidOutcome, ErrorKey)
	}
	switch o.Status {
	case StatusPass, StatusFail, StatusError:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidOutcome, o.Status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	k := pairKey{o.DeviceID, o.ScenarioID}
	if _, dup := r.index[k]; dup {
		return fmt.Errorf("%w: %s/%s", ErrDuplicateOutcome, o.DeviceID, o.ScenarioID)
	}
	r.index[k] = len(r.outcomes)
	r.outcomes = append(r.outcomes, o)
	r.touchDevice(o.DeviceID)
	return nil
}

// RecordDeviceError notes a failure that stopped (part of) a device's sweep.
// A second error for the same device is appended to the first.
func (r *Results) RecordDeviceError(device string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.deviceErrs[device]; ok {
		r.deviceErrs[device] = prev + "; " + err.Error()
	} else {
		r.deviceErrs[device] = err.Error()
	}
	r.touchDevice(device)
}

// Outcome looks up one pair.
func (r *Results) Outcome(device, scenario string) (TestOutcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[pairKey{device, scenario}]
	if !ok {
		return TestOutcome{}, false
	}
	return r.outcomes[i], true
}

// Outcomes returns every outcome in the order it was recorded.
func (r *Results) Outcomes() []TestOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TestOutcome(nil), r.outcomes...)
}

// Devices lists every device with an outcome or error, in first-seen order.
func (r *Results) Devices() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.devices...)
}

// DeviceError returns the recorded device-level failure, if any.
func (r *Results) DeviceError(device string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.deviceErrs[device]
	return msg, ok
}

func (r *Results) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{Total: len(r.outcomes), DeviceErrors: len(r.deviceErrs)}
	for _, o := range r.outcomes {
		switch o.Status {
		case StatusPass:
			s.Passed++
		case StatusFail:
			s.Failed++
		case StatusError:
			s.Errored++
		}
	}
	return s
}

// MarshalJSON writes the results file shape: device -> scenario -> outcome,
// with a device-level failure under the "error" key.
func (r *Results) MarshalJSON() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc := make(map[string]map[string]any, len(r.devices))
	for _, d := range r.devices {
		doc[d] = make(map[string]any)
	}
	for _, o := range r.outcomes {
		doc[o.DeviceID][o.ScenarioID] = o
	}
	for d, msg := range r.deviceErrs {
		doc[d][ErrorKey] = msg
	}
	return json.Marshal(doc)
}

// UnmarshalJSON replaces the accumulated outcomes with those in data. Devices
// and scenarios are restored in sorted order.
func (r *Results) UnmarshalJSON(data []byte) error {
	var doc map[string]map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	fresh := New(r.Run())
	devices := make([]string, 0, len(doc))
	for d := range doc {
		devices = append(devices, d)
	}
	sort.Strings(devices)

	for _, d := range devices {
		entries := doc[d]
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fresh.touchDevice(d)
		for _, k := range keys {
			raw := entries[k]
			if k == ErrorKey {
				var msg string
				if err := json.Unmarshal(raw, &msg); err != nil {
					return fmt.Errorf("device %q: error field: %w", d, err)
				}
				fresh.deviceErrs[d] = msg
				continue
			}
			o := TestOutcome{DeviceID: d, ScenarioID: k}
			if err := json.Unmarshal(raw, &o); err != nil {
				return fmt.Errorf("device %q scenario %q: %w", d, k, err)
			}
			if err := fresh.Record(o); err != nil {
				return err
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = fresh.outcomes
	r.index = fresh.index
	r.devices = fresh.devices
	r.deviceErrs = fresh.deviceErrs
	return nil
}

// Save writes the results file, creating parent directories. The file is
// replaced atomically.
func (r *Results) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp results file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set results file mode: %w", err)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move results into place: %w", err)
	}
	return nil
}

// Load reads a results file written by Save.
func Load(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	r := New(Run{})
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to decode results %s: %w", path, err)
	}
	return r, nil
}
