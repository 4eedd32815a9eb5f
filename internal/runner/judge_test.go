// File: internal/runner/judge_test.go
package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/devicesweep/internal/interactor"
	"github.com/xkilldash9x/devicesweep/internal/results"
	"github.com/xkilldash9x/devicesweep/internal/scenario"
)

func TestJudge(t *testing.T) {
	expectError := scenario.Scenario{ID: "invalid_email", Expect: scenario.ExpectError, ExpectedText: "Valid Email"}
	expectErrorAny := scenario.Scenario{ID: "empty_email", Expect: scenario.ExpectError}
	expectSuccess := scenario.Scenario{ID: "valid_email", Expect: scenario.ExpectSuccess}

	errText := interactor.Outcome{Kind: interactor.KindErrorText, Matched: "Please enter a valid email"}
	otherErr := interactor.Outcome{Kind: interactor.KindErrorText, Matched: "Something went wrong", PageText: "Something went wrong"}
	successText := interactor.Outcome{Kind: interactor.KindSuccessText, Matched: "Check your inbox"}
	redirect := interactor.Outcome{Kind: interactor.KindRedirected, URL: "https://mint.example.com/passport/42"}
	timedOut := interactor.Outcome{Kind: interactor.KindTimedOut}

	tests := []struct {
		name       string
		sc         scenario.Scenario
		out        interactor.Outcome
		want       results.Status
		noteworthy bool
	}{
		{"error expected and shown", expectError, errText, results.StatusPass, true},
		{"error expected but wrong text", expectError, otherErr, results.StatusFail, false},
		{"any error accepted", expectErrorAny, otherErr, results.StatusPass, true},
		{"error expected, nothing happened", expectError, timedOut, results.StatusPass, false},
		{"error expected, redirected", expectError, redirect, results.StatusFail, false},
		{"error expected, success shown", expectError, successText, results.StatusFail, false},
		{"success expected, redirected", expectSuccess, redirect, results.StatusPass, false},
		{"success expected, success shown", expectSuccess, successText, results.StatusPass, false},
		{"success expected, error shown", expectSuccess, errText, results.StatusFail, false},
		{"success expected, nothing happened", expectSuccess, timedOut, results.StatusFail, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Judge(tt.sc, tt.out)
			assert.Equal(t, tt.want, v.Status)
			assert.Equal(t, tt.noteworthy, v.Noteworthy)
			assert.NotEmpty(t, v.Message)
		})
	}
}

func TestJudge_ExpectedTextInPageText(t *testing.T) {
	sc := scenario.Scenario{ID: "x", Expect: scenario.ExpectError, ExpectedText: "domain"}
	out := interactor.Outcome{
		Kind:     interactor.KindErrorText,
		Matched:  "invalid email",
		PageText: "Invalid email: the domain is missing",
	}
	assert.Equal(t, results.StatusPass, Judge(sc, out).Status)
}

func TestJudge_RedirectMessage(t *testing.T) {
	v := Judge(scenario.Scenario{Expect: scenario.ExpectSuccess}, interactor.Outcome{Kind: interactor.KindRedirected, URL: "https://x/y"})
	assert.Equal(t, "redirected to https://x/y", v.Message)
}
