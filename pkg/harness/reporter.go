package harness

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Reporter is told about every finished step and about the end of the run
type Reporter interface {
	StepFinished(step StepResult)
	RunFinished(report *Report)
}

const textExcerpt = 200

var outcomeLabels = map[Outcome]string{
	OutcomePassed:  "PASS",
	OutcomeFailed:  "FAIL",
	OutcomeWarning: "WARN",
	OutcomeSkipped: "SKIP",
}

// TextReporter writes a line per step and a closing summary
type TextReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTextReporter creates a reporter writing to out
func NewTextReporter(out io.Writer) *TextReporter {
	return &TextReporter{out: out}
}

// StepFinished implements Reporter
func (r *TextReporter) StepFinished(step StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %d. %s", outcomeLabels[step.Outcome], step.Index+1, step.Name)
	if step.Tool != "" {
		fmt.Fprintf(&b, " (%s)", step.Tool)
	} else {
		fmt.Fprintf(&b, " (%s)", step.Method)
	}
	if step.Outcome != OutcomeSkipped {
		fmt.Fprintf(&b, " %s", step.Duration.Round(100*time.Microsecond))
	}
	b.WriteByte('\n')

	if step.Server != nil {
		fmt.Fprintf(&b, "      server: %s %s\n", step.Server.Name, step.Server.Version)
	}
	if step.Kind == KindDiscovery && step.Err == nil {
		fmt.Fprintf(&b, "      %d tools: %s\n", len(step.Tools), strings.Join(step.Tools, ", "))
	}
	if step.Error != nil {
		fmt.Fprintf(&b, "      error: %s\n", step.Error)
	}
	for _, warning := range step.Warnings {
		fmt.Fprintf(&b, "      warning: %s\n", &warning)
	}
	if step.Text != "" {
		fmt.Fprintf(&b, "      result: %s\n", excerpt(step.Text))
	}

	_, _ = io.WriteString(r.out, b.String())
}

// RunFinished implements Reporter
func (r *TextReporter) RunFinished(report *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if report.FatalError != nil {
		fmt.Fprintf(r.out, "run aborted: %s\n", report.FatalError)
	}
	fmt.Fprintf(r.out, "%s: %s (%s) in %s\n",
		report.Scenario, report.Summary(), report.State, report.Duration.Round(time.Millisecond))
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= textExcerpt {
		return text
	}
	cut := textExcerpt
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// JSONReporter writes the whole report as one JSON document when the run
// finishes
type JSONReporter struct {
	out io.Writer
}

// NewJSONReporter creates a reporter writing to out
func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{out: out}
}

// StepFinished implements Reporter
func (r *JSONReporter) StepFinished(StepResult) {}

// RunFinished implements Reporter
func (r *JSONReporter) RunFinished(report *Report) {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(struct {
		*Report
		Summary Summary `json:"summary"`
	}{report, report.Summary()})
}
