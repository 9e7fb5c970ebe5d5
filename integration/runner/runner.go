package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running quest-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Timeout           time.Duration
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 60 * time.Second},
		Timeout:           30 * time.Second,
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite as a fresh player, so runs never
// see each other's progress.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results:  make([]TestResult, 0, len(suite.Steps)),
		PlayerID: "it-" + uuid.NewString(),
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, result.PlayerID, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep performs one call and checks its expectations
func (r *Runner) runStep(ctx context.Context, playerID string, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	stepCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	status, body, err := r.call(stepCtx, step.Method, expandPath(step.Path, playerID), step.Body)
	result.StatusCode = status
	result.ResponseText = string(body)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	if err := checkResponse(step.Expectations, status, body); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	if len(step.Expectations.Inventory) > 0 {
		if err := r.checkInventory(stepCtx, playerID, step.Expectations.Inventory); err != nil {
			result.Error = err
			result.Duration = time.Since(start)
			return result
		}
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) call(ctx context.Context, method, path string, body json.RawMessage) (int, []byte, error) {
	if method == "" {
		method = http.MethodGet
	}
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// expandPath substitutes the player id and percent-encodes each segment.
func expandPath(path, playerID string) string {
	path = strings.ReplaceAll(path, PlayerPlaceholder, playerID)
	return (&url.URL{Path: path}).EscapedPath()
}

func checkResponse(exp Expectations, status int, body []byte) error {
	if exp.Status != nil && status != *exp.Status {
		return fmt.Errorf("expected status %d, got %d: %s", *exp.Status, status, string(body))
	}

	if exp.Reason != nil || exp.Kind != nil {
		var tagged struct {
			Reason string `json:"reason"`
			Kind   string `json:"kind"`
		}
		if err := json.Unmarshal(body, &tagged); err != nil {
			return fmt.Errorf("response is not a JSON object: %w", err)
		}
		if exp.Reason != nil && tagged.Reason != *exp.Reason {
			return fmt.Errorf("expected reason %q, got %q", *exp.Reason, tagged.Reason)
		}
		if exp.Kind != nil && tagged.Kind != *exp.Kind {
			return fmt.Errorf("expected kind %q, got %q", *exp.Kind, tagged.Kind)
		}
	}

	text := string(body)
	lower := strings.ToLower(text)
	for _, s := range exp.ResponseContains {
		if !strings.Contains(lower, strings.ToLower(s)) {
			return fmt.Errorf("response does not contain %q", s)
		}
	}
	for _, s := range exp.ResponseNotContains {
		if strings.Contains(lower, strings.ToLower(s)) {
			return fmt.Errorf("response unexpectedly contains %q", s)
		}
	}
	if exp.ResponseRegex != "" {
		re, err := regexp.Compile(exp.ResponseRegex)
		if err != nil {
			return fmt.Errorf("invalid response_regex: %w", err)
		}
		if !re.MatchString(text) {
			return fmt.Errorf("response does not match %q", exp.ResponseRegex)
		}
	}
	return nil
}

func (r *Runner) checkInventory(ctx context.Context, playerID string, want map[string]int) error {
	status, body, err := r.call(ctx, http.MethodGet, expandPath("/v1/players/{player}/inventory", playerID), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("inventory returned %d: %s", status, string(body))
	}

	var inv struct {
		Inventory []struct {
			Item     string `json:"item"`
			Quantity int    `json:"quantity"`
		} `json:"inventory"`
	}
	if err := json.Unmarshal(body, &inv); err != nil {
		return fmt.Errorf("failed to decode inventory: %w", err)
	}

	have := make(map[string]int, len(inv.Inventory))
	for _, it := range inv.Inventory {
		have[strings.ToLower(it.Item)] = it.Quantity
	}
	for item, qty := range want {
		if got := have[strings.ToLower(item)]; got != qty {
			return fmt.Errorf("expected %d× %s in inventory, have %d", qty, item, got)
		}
	}
	return nil
}
