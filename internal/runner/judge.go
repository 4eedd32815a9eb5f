// File: internal/runner/judge.go
package runner

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/devicesweep/internal/interactor"
	"github.com/xkilldash9x/devicesweep/internal/results"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

// Verdict is the judged result of one observed outcome.
type Verdict struct {
	Status  results.Status
	Message string
	// Noteworthy marks an expected error that was found; it earns a screenshot
	// under the noteworthy policy just like every non-pass.
	Noteworthy bool
}

// Judge maps an observed outcome onto pass or fail for the scenario's
// expectation. A TimedOut wait passes a negative scenario: no success was seen.
func Judge(sc scenario.Scenario, out interactor.Outcome) Verdict {
	if sc.ExpectsError() {
		switch out.Kind {
		case interactor.KindErrorText:
			if sc.ExpectedText != "" && !containsFold(out.Matched, sc.ExpectedText) && !containsFold(out.PageText, sc.ExpectedText) {
				return Verdict{
					Status:  results.StatusFail,
					Message: fmt.Sprintf("error shown but %q not found: %s", sc.ExpectedText, out),
				}
			}
			return Verdict{Status: results.StatusPass, Message: fmt.Sprintf("expected error shown: %s", out), Noteworthy: true}
		case interactor.KindTimedOut:
			return Verdict{Status: results.StatusPass, Message: "no redirect or success message before timeout"}
		default:
			return Verdict{Status: results.StatusFail, Message: fmt.Sprintf("expected an error but observed %s", out)}
		}
	}

	switch out.Kind {
	case interactor.KindRedirected:
		return Verdict{Status: results.StatusPass, Message: fmt.Sprintf("redirected to %s", out.URL)}
	case interactor.KindSuccessText:
		return Verdict{Status: results.StatusPass, Message: fmt.Sprintf("success shown: %s", out)}
	case interactor.KindErrorText:
		return Verdict{Status: results.StatusFail, Message: fmt.Sprintf("expected success but observed %s", out)}
	default:
		return Verdict{Status: results.StatusFail, Message: "expected success but nothing happened before timeout"}
	}
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
