package harness

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	mcperrors "github.com/ajitpratap0/mcp-conformance/pkg/errors"
	"github.com/ajitpratap0/mcp-conformance/pkg/logging"
	"github.com/ajitpratap0/mcp-conformance/pkg/observability"
	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
	"github.com/ajitpratap0/mcp-conformance/pkg/utils"
)

// Caller issues the three MCP methods a run needs. *client.Client
// implements it.
type Caller interface {
	Initialize(ctx context.Context) (*protocol.InitializeResult, error)
	ListTools(ctx context.Context) ([]protocol.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*protocol.CallToolResult, error)
	LastID() int64
}

// Policy decides which non-fatal failures still end the run
type Policy struct {
	AbortOnHandshakeFailure bool
	AbortOnDiscoveryFailure bool
}

// DefaultPolicy tolerates a failed handshake and stops after a failed
// discovery
func DefaultPolicy() Policy {
	return Policy{AbortOnDiscoveryFailure: true}
}

// Sequencer runs a scenario step by step over one Caller
type Sequencer struct {
	caller   Caller
	scenario *Scenario
	policy   Policy
	connect  func(ctx context.Context) error
	runID    string
	endpoint string
	logger   logging.Logger
	tracer   *observability.TracingProvider
	metrics  observability.MetricsProvider
	reporter Reporter

	state  RunState
	report *Report
	tools  map[string]protocol.Tool
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithPolicy overrides DefaultPolicy
func WithPolicy(policy Policy) Option {
	return func(s *Sequencer) {
		s.policy = policy
	}
}

// WithConnect makes the run open the channel itself, so a failed connect is
// recorded in the report
func WithConnect(connect func(ctx context.Context) error) Option {
	return func(s *Sequencer) {
		s.connect = connect
	}
}

// WithRunID sets the id carried by the report, logs and spans
func WithRunID(runID string) Option {
	return func(s *Sequencer) {
		s.runID = runID
	}
}

// WithEndpoint records the endpoint under test in the report
func WithEndpoint(endpoint string) Option {
	return func(s *Sequencer) {
		s.endpoint = endpoint
	}
}

// WithLogger sets the logger for step and run records; the default
// discards them
func WithLogger(logger logging.Logger) Option {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// WithTracer enables run and step spans. A nil provider records nothing.
func WithTracer(tracer *observability.TracingProvider) Option {
	return func(s *Sequencer) {
		s.tracer = tracer
	}
}

// WithMetrics sets where step outcomes and run states are counted
func WithMetrics(metrics observability.MetricsProvider) Option {
	return func(s *Sequencer) {
		s.metrics = metrics
	}
}

// WithReporter receives each step as it finishes
func WithReporter(reporter Reporter) Option {
	return func(s *Sequencer) {
		s.reporter = reporter
	}
}

// NewSequencer creates a sequencer for scenario. A nil scenario runs
// DefaultScenario.
func NewSequencer(caller Caller, scenario *Scenario, options ...Option) *Sequencer {
	if scenario == nil {
		scenario = DefaultScenario()
	}
	s := &Sequencer{
		caller:   caller,
		scenario: scenario,
		policy:   DefaultPolicy(),
		logger:   logging.NewNop(),
		metrics:  observability.NewNoopMetricsProvider(),
		state:    StateDisconnected,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// State returns the current run state
func (s *Sequencer) State() RunState {
	return s.state
}

// plan lists every step of a run in execution order
func (s *Sequencer) plan() []StepResult {
	steps := []StepResult{
		{Name: "handshake", Kind: KindHandshake, Method: protocol.MethodInitialize},
		{Name: "discovery", Kind: KindDiscovery, Method: protocol.MethodListTools},
	}
	for _, step := range s.scenario.Steps {
		steps = append(steps, StepResult{
			Name:   step.Name,
			Kind:   KindTool,
			Method: protocol.MethodCallTool,
			Tool:   step.Tool,
		})
	}
	for i := range steps {
		steps[i].Index = i
	}
	return steps
}

// Run executes the handshake, discovery and every scripted call in order.
// It returns the report together with the fatal error that ended the run,
// if any. Non-fatal failures are recorded in the report only.
func (s *Sequencer) Run(ctx context.Context) (*Report, error) {
	if s.runID != "" {
		ctx = logging.ContextWithRunID(ctx, s.runID)
	}
	ctx, span := s.tracer.StartRunSpan(ctx, s.runID, s.scenario.Name, s.endpoint)
	defer span.End()

	s.report = &Report{
		RunID:     s.runID,
		Scenario:  s.scenario.Name,
		Endpoint:  s.endpoint,
		State:     StateDisconnected,
		StartedAt: time.Now(),
	}
	s.tools = nil
	s.state = StateDisconnected
	s.metrics.RecordRunState(ctx, string(s.state))

	logger := s.logger.WithContext(ctx).WithFields(logging.String("scenario", s.scenario.Name))
	logger.Info("Run started", logging.String("endpoint", s.endpoint))

	pending := s.plan()
	err := s.execute(ctx, pending)

	s.report.Duration = time.Since(s.report.StartedAt)
	s.report.State = s.state
	if err != nil {
		s.report.Fatal = err
		s.report.FatalError = newFailure(err)
		s.tracer.RecordError(ctx, err)
		logger.WithError(err).Error("Run aborted")
	}
	span.SetAttributes(attribute.String("mcpcheck.state", string(s.state)))

	summary := s.report.Summary()
	logger.Info("Run finished",
		logging.String("state", string(s.state)),
		logging.Int("passed", summary.Passed),
		logging.Int("failed", summary.Failed),
		logging.Int("warnings", summary.Warnings),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("duration", s.report.Duration),
	)
	if s.reporter != nil {
		s.reporter.RunFinished(s.report)
	}
	return s.report, err
}

func (s *Sequencer) execute(ctx context.Context, pending []StepResult) error {
	if s.connect != nil {
		if err := s.connect(ctx); err != nil {
			s.abort(ctx, pending)
			return err
		}
	}
	s.transition(ctx, StateConnected)

	s.transition(ctx, StateHandshaking)
	handshake := s.runStep(ctx, pending[0], s.handshake)
	if handshake.Err != nil {
		if mcperrors.IsFatal(handshake.Err) {
			s.abort(ctx, pending[1:])
			return handshake.Err
		}
		if s.policy.AbortOnHandshakeFailure {
			s.abort(ctx, pending[1:])
			return nil
		}
	}
	s.transition(ctx, StateReady)

	discovery := s.runStep(ctx, pending[1], s.discover)
	if discovery.Err != nil {
		if mcperrors.IsFatal(discovery.Err) {
			s.abort(ctx, pending[2:])
			return discovery.Err
		}
		if s.policy.AbortOnDiscoveryFailure {
			s.abort(ctx, pending[2:])
			return nil
		}
	}
	s.transition(ctx, StateExecuting)

	for i, step := range s.scenario.Steps {
		result := s.runStep(ctx, pending[i+2], func(ctx context.Context, r *StepResult) {
			s.callTool(ctx, &step, r)
		})
		if result.Err != nil && mcperrors.IsFatal(result.Err) {
			s.abort(ctx, pending[i+3:])
			return result.Err
		}
	}

	s.transition(ctx, StateDone)
	return nil
}

// runStep executes one step unless the run has been cancelled, records it
// and hands it to the reporter
func (s *Sequencer) runStep(ctx context.Context, result StepResult, body func(context.Context, *StepResult)) StepResult {
	ctx, span := s.tracer.StartStepSpan(ctx, result.Index, result.Name, string(result.Kind))
	defer span.End()

	start := time.Now()
	if err := ctx.Err(); err != nil {
		result.fail(mcperrors.Cancelled(result.Name, err))
	} else {
		body(ctx, &result)
		if result.Err != nil {
			result.Err = withStep(result.Err, result.Name)
		}
		result.settle()
	}
	result.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("mcpcheck.step.outcome", string(result.Outcome)),
		attribute.Int64("rpc.jsonrpc.request_id", result.RequestID),
	)
	if result.Err != nil {
		s.tracer.RecordError(ctx, result.Err)
	}
	s.metrics.RecordStep(ctx, string(result.Kind), string(result.Outcome), result.Duration)
	s.logStep(ctx, result)
	s.record(result)
	return result
}

func (s *Sequencer) handshake(ctx context.Context, r *StepResult) {
	result, err := s.caller.Initialize(ctx)
	r.RequestID = s.caller.LastID()
	if err != nil {
		r.fail(err)
		return
	}

	r.Server = result.ServerInfo
	if result.ProtocolVersion != "" && result.ProtocolVersion != s.scenario.ProtocolVersion {
		r.warn(mcperrors.VersionMismatch(s.scenario.ProtocolVersion, result.ProtocolVersion))
	}
}

func (s *Sequencer) discover(ctx context.Context, r *StepResult) {
	tools, err := s.caller.ListTools(ctx)
	r.RequestID = s.caller.LastID()
	if err != nil {
		r.fail(err)
		return
	}

	s.tools = make(map[string]protocol.Tool, len(tools))
	r.Tools = make([]string, 0, len(tools))
	for _, tool := range tools {
		s.tools[tool.Name] = tool
		r.Tools = append(r.Tools, tool.Name)
	}
}

func (s *Sequencer) callTool(ctx context.Context, step *ToolStep, r *StepResult) {
	// the advertised list is only checked when discovery succeeded
	if s.tools != nil {
		tool, ok := s.tools[step.Tool]
		switch {
		case !ok:
			r.warn(mcperrors.ToolNotAdvertised(step.Tool))
		case step.Validate:
			if err := utils.ValidateArguments(step.Arguments, tool.InputSchema); err != nil {
				r.warn(mcperrors.SchemaWarning(step.Tool, err))
			}
		}
	}

	result, err := s.caller.CallTool(ctx, step.Tool, step.Arguments)
	r.RequestID = s.caller.LastID()
	if err != nil {
		r.fail(err)
		return
	}

	text, textErr := result.FirstText()
	if result.IsError {
		r.Text = text
		r.fail(mcperrors.ToolReportedError(step.Tool, text))
		return
	}
	if textErr != nil {
		r.fail(mcperrors.UnexpectedShape(protocol.MethodCallTool, textErr))
		return
	}

	r.Text = text
	if !step.Expect.Match(text) {
		r.warn(mcperrors.ContentWarning(step.Tool, step.Expect.Keywords(), text))
	}
}

// abort marks every remaining step skipped and ends the run
func (s *Sequencer) abort(ctx context.Context, remaining []StepResult) {
	for _, result := range remaining {
		result.Outcome = OutcomeSkipped
		s.metrics.RecordStep(ctx, string(result.Kind), string(result.Outcome), 0)
		s.record(result)
	}
	s.transition(ctx, StateAborted)
}

func (s *Sequencer) transition(ctx context.Context, next RunState) {
	if !s.state.CanTransition(next) {
		s.logger.WithContext(ctx).Warn("Ignoring invalid run state transition",
			logging.String("from", string(s.state)),
			logging.String("to", string(next)),
		)
		return
	}
	s.state = next
	s.report.State = next
	s.metrics.RecordRunState(ctx, string(next))
	s.tracer.AddEvent(ctx, "state", attribute.String("mcpcheck.state", string(next)))
}

func (s *Sequencer) record(result StepResult) {
	s.report.Steps = append(s.report.Steps, result)
	if s.reporter != nil {
		s.reporter.StepFinished(result)
	}
}

func (s *Sequencer) logStep(ctx context.Context, result StepResult) {
	logger := s.logger.WithContext(ctx).WithFields(
		logging.Int("step", result.Index),
		logging.String("name", result.Name),
		logging.String("method", result.Method),
		logging.Int64("request_id", result.RequestID),
		logging.Duration("duration", result.Duration),
	)
	if result.Tool != "" {
		logger = logger.WithFields(logging.String("tool", result.Tool))
	}

	switch result.Outcome {
	case OutcomeFailed:
		logger.WithError(result.Err).Error("Step failed")
	case OutcomeWarning:
		for _, warning := range result.Warnings {
			logger.Warn("Step warning",
				logging.Int("code", warning.Code),
				logging.String("warning", warning.Message),
			)
		}
	default:
		logger.Info("Step passed")
	}
}

// withStep records the step name in an MCPError's context
func withStep(err error, step string) error {
	mcpErr, ok := mcperrors.AsMCPError(err)
	if !ok {
		return err
	}
	var errCtx mcperrors.Context
	if existing := mcpErr.Context(); existing != nil {
		errCtx = *existing
	}
	errCtx.Step = step
	if errCtx.Timestamp.IsZero() {
		errCtx.Timestamp = time.Now()
	}
	return mcpErr.WithContext(&errCtx)
}
