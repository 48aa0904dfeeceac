package harness

import (
	"fmt"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

// Outcome is the verdict recorded for one step
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeWarning Outcome = "warning"
	OutcomeSkipped Outcome = "skipped"
)

// StepKind tells the handshake and discovery steps apart from scripted calls
type StepKind string

const (
	KindHandshake StepKind = "handshake"
	KindDiscovery StepKind = "discovery"
	KindTool      StepKind = "tool"
)

// Failure is the serialisable form of an error recorded in a report
type Failure struct {
	Code int `json:"code"`
	// Name is the registered name of Code, empty for server-defined codes
	Name     string `json:"name,omitempty"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

func newFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		return &Failure{
			Code:     mcpErr.Code(),
			Name:     mcperrors.GetErrorCodeName(mcpErr.Code()),
			Category: string(mcpErr.Category()),
			Message:  mcpErr.Message(),
		}
	}
	return &Failure{
		Code:     mcperrors.CodeInternalError,
		Name:     mcperrors.GetErrorCodeName(mcperrors.CodeInternalError),
		Category: string(mcperrors.CategoryInternal),
		Message:  err.Error(),
	}
}

func (f *Failure) String() string {
	if f.Name == "" {
		return fmt.Sprintf("[%s %d] %s", f.Category, f.Code, f.Message)
	}
	return fmt.Sprintf("[%s %d %s] %s", f.Category, f.Code, f.Name, f.Message)
}

// StepResult records what happened in one step
type StepResult struct {
	Index     int       `json:"index"`
	Name      string    `json:"name"`
	Kind      StepKind  `json:"kind"`
	Method    string    `json:"method"`
	Tool      string    `json:"tool,omitempty"`
	RequestID int64     `json:"request_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Err       error     `json:"-"`
	Error     *Failure  `json:"error,omitempty"`
	Warnings  []Failure `json:"warnings,omitempty"`

	// Text is the first content text of a tool result
	Text string `json:"text,omitempty"`
	// Tools names the descriptors returned by discovery, in server order
	Tools  []string             `json:"tools,omitempty"`
	Server *protocol.ServerInfo `json:"server,omitempty"`

	Duration time.Duration `json:"duration"`
}

func (r *StepResult) fail(err error) {
	r.Err = err
	r.Error = newFailure(err)
	r.Outcome = OutcomeFailed
}

func (r *StepResult) warn(err error) {
	r.Warnings = append(r.Warnings, *newFailure(err))
}

// settle derives the outcome of a step that was executed
func (r *StepResult) settle() {
	switch {
	case r.Err != nil:
		r.Outcome = OutcomeFailed
	case len(r.Warnings) > 0:
		r.Outcome = OutcomeWarning
	default:
		r.Outcome = OutcomePassed
	}
}

// Report is the outcome of a run
type Report struct {
	RunID      string        `json:"run_id"`
	Scenario   string        `json:"scenario"`
	Endpoint   string        `json:"endpoint,omitempty"`
	State      RunState      `json:"state"`
	Steps      []StepResult  `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Fatal      error         `json:"-"`
	FatalError *Failure      `json:"fatal,omitempty"`
}

// Summary counts steps by outcome
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
	Skipped  int `json:"skipped"`
}

// Summary counts the report's steps by outcome
func (r *Report) Summary() Summary {
	summary := Summary{Total: len(r.Steps)}
	for _, step := range r.Steps {
		switch step.Outcome {
		case OutcomePassed:
			summary.Passed++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeWarning:
			summary.Warnings++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}
	return summary
}

// Passed reports whether the run completed with no failed step
func (r *Report) Passed() bool {
	return r.State == StateDone && r.Summary().Failed == 0
}

// Step returns the result of the named step
func (r *Report) Step(name string) (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Name == name {
			return step, true
		}
	}
	return StepResult{}, false
}

func (s Summary) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d warnings, %d skipped", s.Passed, s.Failed, s.Warnings, s.Skipped)
}
