package runner

import (
	"encoding/json"
	"time"
)

// PlayerPlaceholder in a step path is replaced with the player id of the run.
const PlayerPlaceholder = "{player}"

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `json:"name"`
	Steps []TestStep `json:"steps,omitempty"` // Used for regular tests
	Cases []string   `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one API call and what it should produce.
type TestStep struct {
	Name         string          `json:"name,omitempty"`
	Method       string          `json:"method"`
	Path         string          `json:"path"` // e.g. /v1/players/{player}/inventory
	Body         json.RawMessage `json:"body,omitempty"`
	Expectations Expectations    `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	Status *int    `json:"status,omitempty"`
	Reason *string `json:"reason,omitempty"` // failure reason code
	Kind   *string `json:"kind,omitempty"`   // kind of a list or ack body

	// Inventory is checked with a follow-up GET after the step. Items not
	// listed are not checked; a quantity of 0 means the item must be absent.
	Inventory map[string]int `json:"inventory,omitempty"`

	// Response Analysis
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	StatusCode   int
	ResponseText string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	PlayerID string // player used for this run
}
