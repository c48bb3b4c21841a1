// Package orchestrator implements the per-turn control flow: the
// host's model response is parsed by the Tool Router, scheduled by
// the Reader/Writer Scheduler through the Tool Registry into Tool
// Handlers gated by the Execution Policy and recorded by the Turn
// Diff Tracker, with handler output passing through the Output
// Formatter before the Context Session appends results and considers
// compaction.
//
// Generalizes a sequential tool-dispatch loop into handing an entire
// batch of parsed tool calls to the scheduler per turn instead of
// looping over them one at a time.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agentcore/internal/config"
	"agentcore/internal/events"
	"agentcore/internal/interrupt"
	"agentcore/internal/llm"
	"agentcore/internal/policy"
	"agentcore/internal/render"
	"agentcore/internal/repo"
	"agentcore/internal/scheduler"
	"agentcore/internal/session"
	"agentcore/internal/tools"
	"agentcore/internal/tracker"
	"agentcore/internal/util"
	"agentcore/internal/version"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared/constant"
	"go.uber.org/zap"
)

// RunResult captures one turn's output for JSON mode and for
// audit/persistence.
type RunResult struct {
	RunID       string           `json:"run_id"`
	StartedAt   time.Time        `json:"timestamp_start"`
	FinishedAt  time.Time        `json:"timestamp_end"`
	RepoRoot    string           `json:"repo_root"`
	Question    string           `json:"question"`
	Model       string           `json:"model"`
	StepsUsed   int              `json:"steps_used"`
	Status      string           `json:"status"`
	FinalAnswer string           `json:"final_answer"`
	ToolCalls   []ToolCallRecord `json:"tool_calls"`
	Events      []events.Event   `json:"events"`
	// ChangedPaths lists every path touched (created/updated/deleted/
	// renamed) across the turn's diff tracker, for the host's
	// changes.jsonl.
	ChangedPaths []string           `json:"changed_paths"`
	Diff         string             `json:"diff,omitempty"`
	Telemetry    []session.OTELSpan `json:"telemetry,omitempty"`
}

// ToolCallRecord records one dispatched call for RunResult.ToolCalls.
type ToolCallRecord struct {
	ToolName   string    `json:"tool_name"`
	CallID     string    `json:"call_id"`
	Input      any       `json:"input"`
	Output     string    `json:"output"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Orchestrator runs the turn loop described above for one process
// lifetime's worth of turns against one Session.
type Orchestrator struct {
	client    llm.Client
	registry  *tools.Registry
	router    *tools.Router
	scheduler *scheduler.Scheduler
	session   *session.Session
	interrupt *interrupt.Manager
	renderer  render.Renderer
	logger    *zap.Logger
	cfg       config.Config
	policy    policy.Policy
	telemetry *session.TelemetrySink

	turnCounter int
}

// New builds an Orchestrator. renderer and interrupter may be nil:
// a nil renderer suppresses streaming output, a nil interrupter
// disables mid-batch cancellation. New wires sess.OnCompaction to the
// orchestrator's own TelemetrySink so every compaction pass is
// recorded without the caller having to plumb a sink through
// separately.
func New(client llm.Client, registry *tools.Registry, sess *session.Session, renderer render.Renderer, interrupter *interrupt.Manager, logger *zap.Logger, cfg config.Config, pol policy.Policy) *Orchestrator {
	sched := scheduler.New(registry, interrupter)
	telemetry := session.NewTelemetrySink()
	sess.OnCompaction = telemetry.RecordCompaction
	return &Orchestrator{
		client:    client,
		registry:  registry,
		router:    tools.NewRouter(registry),
		scheduler: sched,
		session:   sess,
		interrupt: interrupter,
		renderer:  renderer,
		logger:    logger,
		cfg:       cfg,
		policy:    pol,
		telemetry: telemetry,
	}
}

// Run executes one user turn to completion: repeated model requests
// and tool batches until the model returns a final answer with no
// further tool_use blocks, or MaxSteps is exhausted.
func (o *Orchestrator) Run(ctx context.Context, question string, repoRoot string, repoCtx repo.RepoContext) (result RunResult, runErr error) {
	started := time.Now()
	runID := uuid.NewString()
	result = RunResult{
		RunID:     runID,
		StartedAt: started,
		RepoRoot:  repoRoot,
		Question:  question,
		Model:     o.cfg.Model,
		Status:    "failure",
	}
	defer func() { result.Telemetry = o.telemetry.ToOTELSpans() }()

	emit := func(ev events.Event) {
		result.Events = append(result.Events, ev)
		if o.renderer != nil {
			o.renderer.Emit(ev)
		}
	}

	emit(events.Event{Type: events.RunStarted, Timestamp: time.Now(), Payload: events.RunStartedPayload{
		Version: version.Version, RepoRoot: repoRoot, Model: o.cfg.Model, RunID: runID, StartedAt: started,
	}})

	o.primeSession(question, repoCtx)

	o.registry.Telemetry = func(ev tools.Event) {
		o.telemetry.RecordToolEvent(ev)
		status := "success"
		if !ev.Success {
			status = "error"
		}
		emit(events.Event{Type: events.ToolCallFinished, Timestamp: time.Now(), Payload: events.ToolCallFinishedPayload{
			ToolName:   ev.ToolName,
			Status:     status,
			DurationMs: ev.Duration.Milliseconds(),
			ByteCount:  ev.OutputBytes,
			Truncated:  ev.Truncated,
		}})
	}

	var changedPaths []string
	var lastDiff *string

	steps := 0
	for steps < o.cfg.MaxSteps {
		steps++

		snapshot := o.session.SnapshotForModel()
		wireMessages := toOpenAI(snapshot)
		toolDefs := o.registry.OpenAITools()
		toolChoice := openai.ChatCompletionToolChoiceOptionUnionParam{}
		if len(toolDefs) > 0 {
			toolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
		}

		response, err := o.client.Create(ctx, llm.Request{Model: o.cfg.Model, Messages: wireMessages, Tools: toolDefs, ToolChoice: toolChoice})
		if err != nil {
			o.logger.Error("model request failed", zap.Error(err))
			emit(events.Event{Type: events.RunError, Timestamp: time.Now(), Payload: events.RunErrorPayload{Message: err.Error()}})
			result.Status = "failure"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			return result, err
		}

		if len(response.ToolCalls) == 0 {
			finalAnswer := strings.TrimSpace(response.Content)
			if !o.cfg.JSON {
				streamed, serr := o.streamFinal(ctx, llm.Request{Model: o.cfg.Model, Messages: wireMessages, Tools: toolDefs, ToolChoice: toolChoice}, emit)
				if serr != nil {
					o.logger.Error("streaming failed", zap.Error(serr))
				} else if strings.TrimSpace(streamed) != "" {
					finalAnswer = streamed
				}
			}
			finalAnswer = strings.TrimSpace(finalAnswer)
			o.session.Append(session.Message{Role: session.RoleAssistant, Text: finalAnswer})
			if err := o.session.CompactIfNeeded(false, ""); err != nil {
				o.logger.Warn("compaction deferred", zap.Error(err))
			}

			result.FinalAnswer = finalAnswer
			result.Status = "success"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			result.ChangedPaths = changedPaths
			if lastDiff != nil {
				result.Diff = *lastDiff
			}
			emit(events.Event{Type: events.FinalAnswerReady, Timestamp: time.Now(), Payload: events.FinalAnswerPayload{Answer: result.FinalAnswer}})
			emit(events.Event{Type: events.RunFinished, Timestamp: time.Now(), Payload: events.RunFinishedPayload{Status: result.Status, FinishedAt: result.FinishedAt}})
			return result, nil
		}

		toolUses := make([]session.ToolUseBlock, 0, len(response.ToolCalls))
		blocks := make([]tools.Block, 0, len(response.ToolCalls))
		for _, call := range response.ToolCalls {
			toolUses = append(toolUses, session.ToolUseBlock{CallID: call.ID, Name: call.Name, Input: string(call.Arguments)})
			blocks = append(blocks, tools.Block{Kind: tools.BlockToolUse, ID: call.ID, Name: call.Name, Input: call.Arguments})
		}
		o.session.Append(session.Message{Role: session.RoleAssistant, ToolUses: toolUses})

		calls, err := o.router.ParseBatch(blocks)
		if err != nil {
			emit(events.Event{Type: events.RunError, Timestamp: time.Now(), Payload: events.RunErrorPayload{Message: err.Error()}})
			result.Status = "failure"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			return result, err
		}

		o.turnCounter++
		turnID := o.turnCounter
		turnTracker := tracker.New(turnID)

		for i, call := range calls {
			start := time.Now()
			emit(events.Event{Type: events.ToolCallStarted, Timestamp: start, Payload: events.ToolCallStartedPayload{ToolName: call.ToolName, Input: sanitizePreview(rawInputFor(response.ToolCalls, i)), StartedAt: start}})
		}

		o.session.IncrementInFlight()
		wireResults, batchErr := o.scheduler.RunBatch(ctx, calls, o.invocationBuilder(repoRoot, turnTracker, turnID))
		o.session.DecrementInFlight()

		toolResults := make([]session.ToolResultBlock, 0, len(wireResults))
		for i, wr := range wireResults {
			call := calls[i]
			toolResults = append(toolResults, session.ToolResultBlock{CallID: call.CallID, Content: wr.Content, IsError: wr.IsError})
			status := "success"
			if wr.IsError {
				status = "error"
			}
			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
				ToolName: call.ToolName, CallID: call.CallID, Input: sanitizePreview(rawInputFor(response.ToolCalls, i)),
				Output: wr.Content, Status: status, StartedAt: time.Now(),
			})
		}

		if err := o.session.AppendToolResults(toolResults); err != nil {
			emit(events.Event{Type: events.RunError, Timestamp: time.Now(), Payload: events.RunErrorPayload{Message: err.Error()}})
			result.Status = "failure"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			return result, err
		}

		if diff := turnTracker.GenerateUnifiedDiff(); diff != nil {
			lastDiff = diff
		}
		for _, p := range turnTracker.TouchedPaths() {
			for _, e := range turnTracker.GetEditsFor(p) {
				if e.Action != tracker.ActionRead {
					changedPaths = append(changedPaths, p)
					break
				}
			}
		}

		if batchErr != nil {
			emit(events.Event{Type: events.RunError, Timestamp: time.Now(), Payload: events.RunErrorPayload{Message: batchErr.Error()}})
			result.Status = "failure"
			result.StepsUsed = steps
			result.FinishedAt = time.Now()
			result.ChangedPaths = changedPaths
			return result, batchErr
		}

		if err := o.session.CompactIfNeeded(false, ""); err != nil {
			o.logger.Warn("compaction deferred", zap.Error(err))
		}
	}

	warning := "Max steps reached. Provide the best possible partial answer and include a warning."
	o.session.Append(session.Message{Role: session.RoleSystem, Text: warning})
	finalAnswer := "Max steps reached; unable to complete."
	result.FinalAnswer = finalAnswer
	result.Status = "partial"
	result.StepsUsed = steps
	result.FinishedAt = time.Now()
	result.ChangedPaths = changedPaths
	emit(events.Event{Type: events.FinalAnswerReady, Timestamp: time.Now(), Payload: events.FinalAnswerPayload{Answer: result.FinalAnswer}})
	emit(events.Event{Type: events.RunFinished, Timestamp: time.Now(), Payload: events.RunFinishedPayload{Status: result.Status, FinishedAt: result.FinishedAt}})
	return result, fmt.Errorf("max steps reached")
}

// primeSession seeds the system/developer context on the first turn
// only; subsequent calls to Run against the same Session extend an
// ongoing conversation instead of re-priming it.
func (o *Orchestrator) primeSession(question string, repoCtx repo.RepoContext) {
	if len(o.session.SnapshotForModel()) == 0 {
		o.session.Append(session.Message{Role: session.RoleSystem, Text: systemPrompt()})
		o.session.Append(session.Message{Role: session.RoleSystem, Text: developerPrompt(o.registry.Names())})
		o.session.Append(session.Message{Role: session.RoleSystem, Text: "Repository context:\n" + repoCtx.Summary()})
		if !o.cfg.NoHistory && o.cfg.HistoryLines > 0 {
			history := util.LoadShellHistory(o.cfg.HistoryLines)
			if len(history) > 0 {
				o.session.Append(session.Message{Role: session.RoleSystem, Text: "Recent shell history (most recent last):\n- " + strings.Join(history, "\n- ")})
			}
		}
	}
	o.session.Append(session.Message{Role: session.RoleUser, Text: question})
}

func (o *Orchestrator) invocationBuilder(repoRoot string, trk *tracker.Tracker, turnID int) scheduler.InvocationBuilder {
	return func(call tools.Call) tools.Invocation {
		return tools.Invocation{
			Call:           call,
			Cwd:            repoRoot,
			Policy:         o.policy,
			ApprovalFunc:   o.policy.RequestApproval,
			Tracker:        trk,
			MCPPool:        o.session.Pool,
			SubID:          call.CallID,
			TurnID:         turnID,
			MaxOutputBytes: o.cfg.ToolLimits.ShellMaxBytes,
			MaxResults:     o.cfg.ToolLimits.GrepMaxResults,
		}
	}
}

func (o *Orchestrator) streamFinal(ctx context.Context, req llm.Request, emit func(events.Event)) (string, error) {
	var b strings.Builder
	_, err := o.client.Stream(ctx, req, func(delta string) {
		emit(events.Event{Type: events.ModelDelta, Timestamp: time.Now(), Payload: events.ModelDeltaPayload{Delta: delta}})
		b.WriteString(delta)
	})
	return b.String(), err
}

func rawInputFor(calls []llm.ToolCall, i int) json.RawMessage {
	if i < 0 || i >= len(calls) {
		return nil
	}
	return calls[i].Arguments
}

func sanitizePreview(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]string{"raw": util.RedactSecrets(string(raw))}
	}
	if bytes, err := json.Marshal(data); err == nil {
		return util.RedactSecrets(string(bytes))
	}
	return data
}

// toOpenAI converts session history into the model wire format,
// mapping pinned/system bookkeeping messages onto SystemMessage and
// using the raw ChatCompletionAssistantMessageParam shape for
// tool-call-bearing assistant turns.
func toOpenAI(msgs []session.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case session.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text))
		case session.RoleUser:
			out = append(out, openai.UserMessage(m.Text))
		case session.RoleAssistant:
			if len(m.ToolUses) == 0 {
				out = append(out, openai.AssistantMessage(m.Text))
				continue
			}
			toolCallParams := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolUses))
			for _, tu := range m.ToolUses {
				toolCallParams = append(toolCallParams, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tu.CallID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tu.Name,
							Arguments: tu.Input,
						},
						Type: constant.Function("function"),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCallParams}})
		case session.RoleToolResult:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ToolMessage(tr.Content, tr.CallID))
			}
		}
	}
	return out
}
