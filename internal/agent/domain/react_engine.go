package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"agentloop/internal/agent/ports"
	"agentloop/internal/memory"
	sharederrors "agentloop/internal/shared/errors"
	"agentloop/internal/shared/logging"
	tokenutil "agentloop/internal/shared/token"
)

const (
	defaultMaxSteps       = 20
	defaultMaxRetries     = 3
	defaultMemoryLimit    = 5
	maxEventOutput        = 2000
	maxObservationRunes   = 2000
	stepLimitMessage      = "Step limit exceeded: the task did not finish within %d steps."
	retryExhaustedSuffix  = "\n(retry budget exhausted for this error; choose a different approach)"
	tracerName            = "agentloop/agent"
	cancelledEventContent = "Task cancelled."
)

// ReactEngine drives the reason-act-observe loop for one task at a time.
// It holds no per-task state; everything a run mutates lives in SolveTask.
type ReactEngine struct {
	maxSteps    int
	maxRetries  int
	memoryLimit int
	prompts     promptBuilder
	parser      ports.ActionParser
	classifier  *FailureClassifier
	clock       ports.Clock
	logger      logging.Logger
	tracer      trace.Tracer
}

// ReactEngineConfig captures the dependencies required to construct a ReactEngine.
type ReactEngineConfig struct {
	MaxSteps           int
	MaxRetriesPerError int
	MemoryLimit        int
	ContextTokenBudget int
	SystemPrompt       string
	Tools              []ports.ToolMetadata
	FailureMarkers     []string
	Parser             ports.ActionParser
	TokenCounter       tokenutil.Counter
	Clock              ports.Clock
	Logger             logging.Logger
	Tracer             trace.Tracer
}

// Services are the collaborators of a single run.
type Services struct {
	Reasoning ports.ReasoningClient
	Tools     ports.ToolDispatcher
	Memory    ports.MemoryStore
	Listener  ports.EventListener
}

// NewReactEngine creates an engine. Parser is required.
func NewReactEngine(cfg ReactEngineConfig) *ReactEngine {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = defaultMaxSteps
	}
	if cfg.MaxRetriesPerError < 0 {
		cfg.MaxRetriesPerError = defaultMaxRetries
	}
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = defaultMemoryLimit
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.TokenCounter == nil {
		cfg.TokenCounter = tokenutil.Estimator
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}
	return &ReactEngine{
		maxSteps:    cfg.MaxSteps,
		maxRetries:  cfg.MaxRetriesPerError,
		memoryLimit: cfg.MemoryLimit,
		prompts: promptBuilder{
			system:  cfg.SystemPrompt,
			tools:   cfg.Tools,
			counter: cfg.TokenCounter,
			budget:  cfg.ContextTokenBudget,
		},
		parser:     cfg.Parser,
		classifier: NewFailureClassifier(cfg.FailureMarkers),
		clock:      cfg.Clock,
		logger:     logging.OrNop(cfg.Logger),
		tracer:     cfg.Tracer,
	}
}

// MaxSteps is the configured step ceiling.
func (e *ReactEngine) MaxSteps() int { return e.maxSteps }

// runState is the mutable state of one SolveTask call.
type runState struct {
	run      TaskRun
	services Services
	steps    []Step
	policy   *RetryPolicy
	memory   string
	lastTool string
	started  time.Time
}

// SolveTask runs the loop until finish, the step ceiling, a reasoning outage
// or cancellation. It emits exactly one terminal event (final_answer or
// error) and never panics on model output.
func (e *ReactEngine) SolveTask(ctx context.Context, run TaskRun, services Services) TerminalResult {
	if services.Listener == nil {
		services.Listener = ports.NopListener()
	}
	ctx, span := e.tracer.Start(ctx, "task.run", trace.WithAttributes(
		attribute.String("task.id", run.TaskID),
		attribute.String("session.id", run.SessionID),
	))
	defer span.End()

	state := &runState{
		run:      run,
		services: services,
		policy:   NewRetryPolicy(e.maxRetries),
		started:  e.clock.Now(),
	}
	state.memory = e.loadMemory(ctx, state)

	result := e.loop(ctx, state)
	result.Steps = state.steps
	result.StepsTaken = len(state.steps)
	result.Retries = state.policy.Total()
	result.Duration = e.clock.Now().Sub(state.started)

	span.SetAttributes(
		attribute.String("task.status", string(result.Status)),
		attribute.Int("task.steps", result.StepsTaken),
		attribute.Int("task.retries", result.Retries),
	)
	if result.Err != nil {
		span.SetStatus(codes.Error, result.Err.Error())
	}

	e.emitTerminal(state, result)
	return result
}

func (e *ReactEngine) loop(ctx context.Context, state *runState) TerminalResult {
	var pending *ports.Action

	for len(state.steps) < e.maxSteps {
		if err := ctx.Err(); err != nil {
			return e.cancelled(state)
		}
		index := len(state.steps) + 1

		var action ports.Action
		correction := pending != nil
		if correction {
			action = *pending
			pending = nil
		} else {
			e.emit(state, ports.Event{
				Type:       ports.EventStatus,
				Content:    fmt.Sprintf("Thinking... (step %d)", index),
				Step:       index,
				TotalSteps: e.maxSteps,
				Status:     string(StatusRunning),
			})
			prompt := e.prompts.build(state.run, state.memory, state.steps, nil)
			text, err := e.reason(ctx, state, prompt)
			if err != nil {
				if ctx.Err() != nil {
					return e.cancelled(state)
				}
				return e.reasoningFailed(state, err)
			}
			action = e.parser.Parse(ports.ParseInput{Response: text, Prompt: state.run.Prompt, Step: index})
		}

		e.emit(state, ports.Event{Type: ports.EventThought, Content: action.Thought, Step: index})

		if action.Kind == ports.ActionFinish {
			state.steps = append(state.steps, Step{
				Index:      index,
				Thought:    action.Thought,
				Action:     ports.ActionFinish,
				Correction: correction,
			})
			e.rememberResult(ctx, state, action.Answer)
			return TerminalResult{Status: StatusSucceeded, Answer: action.Answer}
		}

		step, failed, errText := e.act(ctx, state, index, action)
		step.Correction = correction
		state.steps = append(state.steps, step)

		if !failed {
			continue
		}
		if len(state.steps) >= e.maxSteps {
			break
		}
		if ctx.Err() != nil {
			return e.cancelled(state)
		}
		fix, ok, err := e.correct(ctx, state, step, errText)
		if err != nil {
			if ctx.Err() != nil {
				return e.cancelled(state)
			}
			return e.reasoningFailed(state, err)
		}
		if ok {
			pending = &fix
		}
	}

	if ctx.Err() != nil {
		return e.cancelled(state)
	}
	msg := fmt.Sprintf(stepLimitMessage, e.maxSteps)
	return TerminalResult{
		Status: StatusFailed,
		Answer: msg,
		Err:    fmt.Errorf("%w: %d steps", ErrStepLimitExceeded, e.maxSteps),
	}
}

// act dispatches one tool call and records its observation. The tool runs on
// a context detached from cancellation so a cancel lands after it returns.
func (e *ReactEngine) act(ctx context.Context, state *runState, index int, action ports.Action) (Step, bool, string) {
	argText := action.Args.String()
	e.emit(state, ports.Event{
		Type:     ports.EventToolStart,
		Content:  fmt.Sprintf("Running %s", action.ToolName),
		ToolName: action.ToolName,
		Args:     argText,
		Step:     index,
	})

	spanCtx, span := e.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(
		attribute.String("tool.name", action.ToolName),
		attribute.Int("step", index),
	))
	result := state.services.Tools.Dispatch(context.WithoutCancel(spanCtx), action.ToolName, action.Args)
	failed, errText := e.classifier.Classify(result)
	span.SetAttributes(attribute.Bool("tool.error", failed))
	if failed {
		span.SetStatus(codes.Error, truncateRunes(errText, 200))
	}
	span.End()

	state.lastTool = action.ToolName
	e.emit(state, ports.Event{
		Type:         ports.EventToolOutput,
		Content:      truncateRunes(result.Output, maxEventOutput),
		ToolName:     action.ToolName,
		IsError:      failed,
		ErrorSnippet: errText,
		Step:         index,
	})

	return Step{
		Index:       index,
		Thought:     action.Thought,
		Action:      ports.ActionToolCall,
		ToolName:    action.ToolName,
		ToolArgs:    argText,
		Observation: truncateRunes(result.Output, maxObservationRunes),
		IsError:     failed,
	}, failed, errText
}

// correct applies the self-correction policy to a failed step. ok is false
// when the signature's budget is spent; the failure then stays in the
// transcript and the loop asks for a fresh step.
func (e *ReactEngine) correct(ctx context.Context, state *runState, failing Step, errText string) (ports.Action, bool, error) {
	signature := ErrorSignature(failing.ToolName, errText)
	attempt, ok := state.policy.Admit(signature)
	if !ok {
		e.logger.Info("Retry budget exhausted for task %s signature %q", state.run.TaskID, signature)
		last := &state.steps[len(state.steps)-1]
		last.Observation += retryExhaustedSuffix
		return ports.Action{}, false, nil
	}

	e.emit(state, ports.Event{
		Type:         ports.EventSelfCorrection,
		Content:      fmt.Sprintf("Tool %s failed, attempting correction (%d/%d)", failing.ToolName, attempt, e.maxRetries),
		ToolName:     failing.ToolName,
		RetryAttempt: attempt,
		MaxRetries:   e.maxRetries,
		ErrorSnippet: errText,
		Step:         failing.Index,
	})
	e.emit(state, ports.Event{
		Type:    ports.EventStatus,
		Content: fmt.Sprintf("Awaiting corrected action (attempt %d/%d)", attempt, e.maxRetries),
		Status:  string(StatusAwaitingRetry),
		Step:    failing.Index,
	})

	prompt := e.prompts.build(state.run, state.memory, state.steps, &correctionRequest{
		ToolName:   failing.ToolName,
		ErrorText:  errText,
		Attempt:    attempt,
		MaxRetries: e.maxRetries,
	})
	text, err := e.reason(ctx, state, prompt)
	if err != nil {
		return ports.Action{}, false, err
	}
	fix := e.parser.Parse(ports.ParseInput{Response: text, Prompt: state.run.Prompt, Step: failing.Index + 1})
	state.policy.RecordFix(signature, describeAction(fix))

	e.emit(state, ports.Event{
		Type:    ports.EventStatus,
		Content: "Retrying with corrected action",
		Status:  string(StatusRunning),
		Step:    failing.Index + 1,
	})
	return fix, true, nil
}

func (e *ReactEngine) reason(ctx context.Context, state *runState, prompt string) (string, error) {
	if state.services.Reasoning == nil {
		return "", fmt.Errorf("no reasoning client configured")
	}
	ctx, span := e.tracer.Start(ctx, "reasoning.complete")
	defer span.End()
	text, err := state.services.Reasoning.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("response.length", len(text)))
	return text, nil
}

func (e *ReactEngine) loadMemory(ctx context.Context, state *runState) string {
	store := state.services.Memory
	if store == nil || state.run.SessionID == "" {
		return ""
	}
	entries, err := store.Retrieve(ctx, state.run.SessionID, memory.ExtractKeywords(state.run.Prompt), e.memoryLimit)
	if err != nil {
		e.logger.Warn("Memory retrieval failed for session %s: %v", state.run.SessionID, err)
		return ""
	}
	return memory.FormatForPrompt(entries)
}

func (e *ReactEngine) rememberResult(ctx context.Context, state *runState, answer string) {
	store := state.services.Memory
	if store == nil || state.run.SessionID == "" {
		return
	}
	entry := memory.TaskResultEntry(state.run.Prompt, state.lastTool, answer)
	if _, err := store.Append(context.WithoutCancel(ctx), state.run.SessionID, entry); err != nil {
		e.logger.Warn("Failed to record task result for session %s: %v", state.run.SessionID, err)
	}
}

func (e *ReactEngine) reasoningFailed(state *runState, err error) TerminalResult {
	e.logger.Error("Reasoning unavailable for task %s: %v", state.run.TaskID, err)
	return TerminalResult{
		Status: StatusFailed,
		Answer: "Reasoning service unavailable: " + sharederrors.Describe(err),
		Err:    fmt.Errorf("%w: %w", ErrReasoningUnavailable, err),
	}
}

func (e *ReactEngine) cancelled(state *runState) TerminalResult {
	e.logger.Info("Task %s cancelled after %d steps", state.run.TaskID, len(state.steps))
	return TerminalResult{Status: StatusFailed, Answer: cancelledEventContent, Err: ErrCancelled}
}

func (e *ReactEngine) emitTerminal(state *runState, result TerminalResult) {
	if result.Status == StatusSucceeded {
		e.emit(state, ports.Event{
			Type:       ports.EventFinalAnswer,
			Content:    result.Answer,
			Status:     string(result.Status),
			StepsTaken: result.StepsTaken,
			Retries:    result.Retries,
		})
		return
	}
	e.emit(state, ports.Event{
		Type:       ports.EventError,
		Content:    result.Answer,
		Status:     string(result.Status),
		StepsTaken: result.StepsTaken,
		Retries:    result.Retries,
	})
}

func (e *ReactEngine) emit(state *runState, event ports.Event) {
	event.TaskID = state.run.TaskID
	event.SessionID = state.run.SessionID
	event.Timestamp = e.clock.Now()
	state.services.Listener.OnEvent(event)
}

func describeAction(action ports.Action) string {
	if action.Kind == ports.ActionFinish {
		return ports.ToolFinish
	}
	return action.ToolName + " " + action.Args.String()
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

// IsCancelled reports whether a terminal result came from cancellation.
func (r TerminalResult) IsCancelled() bool {
	return errors.Is(r.Err, ErrCancelled)
}

// Summary renders a one-line outcome for logs.
func (r TerminalResult) Summary() string {
	return strings.TrimSpace(fmt.Sprintf("%s after %d steps (%d retries)", r.Status, r.StepsTaken, r.Retries))
}
