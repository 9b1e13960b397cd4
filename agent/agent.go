// Package agent implements the iterative tool-invocation loop that turns a
// model's structured decisions into validated, concurrently executed actions.
// Each user turn runs borrow -> invoke -> validate -> execute -> terminate
// iterations, bounded by hard caps, with corrective retries when the model
// breaks the tool-calling protocol.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentpool/logging"
	"github.com/hupe1980/agentpool/model"
	"github.com/hupe1980/agentpool/pool"
	"github.com/hupe1980/agentpool/state"
	"github.com/hupe1980/agentpool/tool"
	"github.com/hupe1980/agentpool/transcript"
)

// Options tunes the loop. Zero values fall back to the defaults below.
type Options struct {
	// MaxIterations caps model invocations per user turn.
	MaxIterations int
	// MaxRetries bounds attempts per iteration when the response violates
	// the protocol; corrective system messages are injected in between.
	MaxRetries int
	// MinToolCalls is the smallest acceptable batch: one state update plus
	// one effecting call.
	MinToolCalls int
	// BatchSoftCap triggers an efficiency warning, never a rejection.
	BatchSoftCap int
	// TokenBuffer is added to the prompt estimate to reserve response room.
	TokenBuffer int
	// RecentWindow is how many transcript messages the prompt replays.
	RecentWindow int
	// BorrowTimeout bounds the wait for a credential slot. Zero waits as
	// long as the context allows.
	BorrowTimeout time.Duration
	// PromptTemplate overrides DefaultPromptTemplate.
	PromptTemplate string
	// Estimator overrides the default token estimation heuristic.
	Estimator model.TokenEstimator
	// Logger receives loop diagnostics. Nil disables logging.
	Logger logging.Logger
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 10
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 2
	}
	if o.MinToolCalls <= 0 {
		o.MinToolCalls = 2
	}
	if o.BatchSoftCap <= 0 {
		o.BatchSoftCap = 7
	}
	if o.TokenBuffer <= 0 {
		o.TokenBuffer = 5000
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = 5
	}
	if o.PromptTemplate == "" {
		o.PromptTemplate = DefaultPromptTemplate
	}
	if o.Estimator == nil {
		o.Estimator = model.EstimateTokens
	}
	if o.Logger == nil {
		o.Logger = logging.NoOpLogger{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Agent serves user turns for any number of sessions. All shared resources it
// touches (the pool, the executor, the state manager, the transcript) are
// safe for concurrent use, so one Agent can run many sessions at once.
type Agent struct {
	pool        *pool.Pool
	executor    *tool.Executor
	states      *state.Manager
	transcripts transcript.Store
	opts        Options
	logger      logging.Logger
}

// New wires an Agent and registers the built-in protocol tools on the
// executor. Domain tools may be registered before or after.
func New(p *pool.Pool, executor *tool.Executor, states *state.Manager, transcripts transcript.Store, opts Options) (*Agent, error) {
	if p == nil {
		return nil, errors.New("agent: pool is required")
	}
	if executor == nil {
		return nil, errors.New("agent: executor is required")
	}
	if states == nil {
		states = state.NewManager()
	}
	if transcripts == nil {
		transcripts = transcript.NewInMemoryStore()
	}
	opts.applyDefaults()

	for _, t := range protocolTools() {
		if err := executor.Register(t); err != nil {
			return nil, fmt.Errorf("agent: register protocol tool: %w", err)
		}
	}

	return &Agent{
		pool:        p,
		executor:    executor,
		states:      states,
		transcripts: transcripts,
		opts:        opts,
		logger:      opts.Logger,
	}, nil
}

// HandleTurn processes one user message through to a terminal model-produced
// message and returns the text to relay to the user. Failures degrade to
// fixed apologetic messages; the returned error is reserved for misuse such
// as an empty session key.
func (a *Agent) HandleTurn(ctx context.Context, sessionKey, userText string) (string, error) {
	if sessionKey == "" {
		return "", errors.New("agent: session key is required")
	}

	a.applyCrossTurnProtocol(ctx, sessionKey, userText)

	conv := a.states.Get(sessionKey)
	a.saveMessage(ctx, sessionKey, conv.SessionID, "user", userText)

	systemPrompt, err := a.buildSystemPrompt(ctx, sessionKey, conv)
	if err != nil {
		a.logger.Error("prompt build failed", "error", err)
		return a.finishFallback(ctx, sessionKey, conv.SessionID, fallbackModelError), nil
	}

	messages := []model.Message{
		model.SystemMessage(systemPrompt),
		model.UserMessage(userText),
	}

	for iteration := 1; iteration <= a.opts.MaxIterations; iteration++ {
		a.logger.Debug("iteration start", "session_key", sessionKey, "iteration", iteration)

		resp, outcome := a.invokeValidated(ctx, sessionKey, &messages)
		if outcome != "" {
			return a.finishFallback(ctx, sessionKey, conv.SessionID, outcome), nil
		}

		calls := resp.ToolCalls
		if len(calls) > a.opts.BatchSoftCap {
			a.logger.Warn("batch exceeds soft cap", "session_key", sessionKey, "calls", len(calls), "cap", a.opts.BatchSoftCap)
		}
		if !hasStateUpdate(calls) {
			// Log-only: poor context tracking, but not worth blocking on.
			a.logger.Warn("protocol violation", "kind", violationNoStateUpdate.String(), "session_key", sessionKey)
		}

		messages = append(messages, model.Message{Role: "assistant", Text: resp.Text, ToolCalls: calls})

		conv = a.states.Get(sessionKey)
		results := a.executor.ExecuteBatch(ctx, sessionKey, conv.SessionID, calls)

		records := make([]state.ToolCallRecord, len(results))
		final := ""
		for i, res := range results {
			args, _ := calls[i].ArgsMap()
			resultMap := resultMapping(res)
			records[i] = state.ToolCallRecord{Tool: res.Tool, Args: args, Result: resultMap}

			if res.StateDelta != nil {
				a.states.Update(sessionKey, res.StateDelta)
			}
			if res.ProfileDelta != nil {
				a.states.UpdateProfile(sessionKey, res.ProfileDelta)
			}

			messages = append(messages, model.ToolMessage(res.CallID, encodeResult(resultMap)))

			if final == "" {
				if mt, ok := resultMap["message_type"].(string); ok && mt != "" {
					final, _ = resultMap["content"].(string)
				}
			}
		}

		a.states.SetLastToolCalls(sessionKey, records)

		if final != "" {
			a.saveMessage(ctx, sessionKey, conv.SessionID, "assistant", final)
			return final, nil
		}
	}

	a.logger.Warn("iteration budget exhausted", "session_key", sessionKey, "max_iterations", a.opts.MaxIterations)

	return a.finishFallback(ctx, sessionKey, conv.SessionID, fallbackMaxIterations), nil
}

// invokeValidated runs the borrow/invoke/validate retry loop for one
// iteration. It returns the accepted response, or a non-empty fallback text
// when the turn must abort.
func (a *Agent) invokeValidated(ctx context.Context, sessionKey string, messages *[]model.Message) (*model.Response, string) {
	retryCount := 0
	deflections := 0

	for {
		tokensNeeded := int64(a.opts.Estimator(*messages) + a.opts.TokenBuffer)

		slot, lockToken, err := a.pool.Borrow(ctx, tokensNeeded, a.opts.BorrowTimeout)
		if err != nil {
			a.logger.Error("slot borrow failed", "session_key", sessionKey, "error", err)
			return nil, fallbackHighDemand
		}

		start := time.Now()
		resp, err := slot.Invoke(ctx, model.Request{
			Messages: *messages,
			Tools:    a.executor.Definitions(),
		})

		actualTokens := tokensNeeded
		if resp != nil && resp.Usage != nil && resp.Usage.TotalTokens > 0 {
			actualTokens = int64(resp.Usage.TotalTokens)
		}
		if recordErr := a.pool.RecordUsage(ctx, slot, actualTokens); recordErr != nil {
			a.logger.Warn("usage record failed", "slot", slot.Name(), "error", recordErr)
		}
		if returnErr := a.pool.Return(ctx, slot, lockToken); returnErr != nil {
			a.logger.Warn("slot return failed", "slot", slot.Name(), "error", returnErr)
		}

		if err != nil {
			var rateLimited *pool.RateLimitedError
			var quotaExhausted *pool.QuotaExhaustedError
			if errors.As(err, &rateLimited) || errors.As(err, &quotaExhausted) {
				// The slot is cooling down or evicted; the next borrow
				// lands on a different credential. Deflections are
				// transparent and do not spend the corrective-retry
				// budget, bounded instead by one attempt per slot.
				deflections++
				a.logger.Warn("model call deflected", "slot", slot.Name(), "error", err, "deflections", deflections)
				if deflections < a.pool.Size() {
					continue
				}
				return nil, fallbackHighDemand
			}
			a.logger.Error("model call failed", "slot", slot.Name(), "error", err, "duration", time.Since(start))
			return nil, fallbackModelError
		}

		kind, entityIDs := a.classify(resp.ToolCalls)
		if kind == violationNone {
			return resp, ""
		}

		retryCount++
		a.logger.Error("protocol violation",
			"kind", kind.String(),
			"session_key", sessionKey,
			"calls", len(resp.ToolCalls),
			"retry", retryCount,
			"max_retries", a.opts.MaxRetries,
		)

		if retryCount < a.opts.MaxRetries {
			text := correctiveText(kind, entityIDs)
			if kind == violationTooFewCalls && len(resp.ToolCalls) == 1 && resp.ToolCalls[0].Name == ToolUpdateWorkingState {
				text += planningOnlyHint
			}
			*messages = append(*messages, model.SystemMessage(text))
			continue
		}

		switch kind {
		case violationNoCalls:
			return nil, fallbackRephrase
		case violationTooFewCalls:
			// Soft degrade: proceed with the undersized batch, but it must
			// still pass the race check before anything executes.
			a.logger.Error("retries exhausted, proceeding with undersized batch", "session_key", sessionKey)
			if raceIDs := a.executor.EntityCollisions(resp.ToolCalls); len(raceIDs) > 0 {
				return nil, fallbackConflict
			}
			return resp, ""
		default: // violationEntityRace
			return nil, fallbackConflict
		}
	}
}

// classify checks a response against the protocol, in severity order.
func (a *Agent) classify(calls []model.ToolCall) (violationKind, []string) {
	if len(calls) == 0 {
		return violationNoCalls, nil
	}
	if len(calls) < a.opts.MinToolCalls {
		return violationTooFewCalls, nil
	}
	if ids := a.executor.EntityCollisions(calls); len(ids) > 0 {
		return violationEntityRace, ids
	}
	return violationNone, nil
}

// applyCrossTurnProtocol inspects how the previous turn ended. A declarative
// ending rolls the session: transient state resets, the transcript partition
// goes old, a new session id is issued. An interrogative ending pairs the new
// user text with the question as its recorded result.
func (a *Agent) applyCrossTurnProtocol(ctx context.Context, sessionKey, userText string) {
	conv := a.states.Get(sessionKey)
	if len(conv.LastToolCalls) == 0 {
		return
	}

	switch conv.LastToolCalls[len(conv.LastToolCalls)-1].Tool {
	case ToolSendDeclarative:
		oldSessionID := conv.SessionID
		newSessionID := a.states.ResetTransient(sessionKey)
		if n, err := a.transcripts.MarkSessionOld(ctx, oldSessionID); err != nil {
			a.logger.Warn("mark session old failed", "session_id", oldSessionID, "error", err)
		} else {
			a.logger.Info("session rolled", "session_key", sessionKey, "old_session_id", oldSessionID, "new_session_id", newSessionID, "messages_archived", n)
		}
	case ToolSendInterrogative:
		if a.states.AmendLastToolResult(sessionKey, "user_response", userText) {
			a.logger.Debug("user response paired with pending question", "session_key", sessionKey)
		}
	}
}

func (a *Agent) buildSystemPrompt(ctx context.Context, sessionKey string, conv *state.Conversation) (string, error) {
	recent, err := a.transcripts.Recent(ctx, sessionKey, a.opts.RecentWindow)
	if err != nil {
		return "", err
	}
	return buildPrompt(a.opts.PromptTemplate, recent, conv, a.opts.Now().Format("2006-01-02"))
}

// finishFallback persists a fixed apologetic message and returns it.
func (a *Agent) finishFallback(ctx context.Context, sessionKey, sessionID, text string) string {
	a.saveMessage(ctx, sessionKey, sessionID, "assistant", text)
	return text
}

func (a *Agent) saveMessage(ctx context.Context, sessionKey, sessionID, role, content string) {
	err := a.transcripts.Append(ctx, transcript.Message{
		SessionKey: sessionKey,
		SessionID:  sessionID,
		Role:       role,
		Content:    content,
		CreatedAt:  a.opts.Now(),
	})
	if err != nil {
		a.logger.Warn("transcript append failed", "session_key", sessionKey, "role", role, "error", err)
	}
}

func hasStateUpdate(calls []model.ToolCall) bool {
	for _, call := range calls {
		if call.Name == ToolUpdateWorkingState {
			return true
		}
	}
	return false
}

// resultMapping normalizes a tool result into the mapping recorded in the
// batch history and echoed back to the model. Errors stay structured.
func resultMapping(res tool.Result) map[string]any {
	if res.Err != nil {
		toolErr, ok := res.Err.(*tool.ToolError)
		if !ok {
			toolErr = &tool.ToolError{Tool: res.Tool, Message: res.Err.Error(), Code: tool.CodeExecution}
		}
		return map[string]any{"error": map[string]any{
			"tool":    toolErr.Tool,
			"message": toolErr.Message,
			"code":    toolErr.Code,
		}}
	}
	if m, ok := res.Output.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": res.Output}
}

func encodeResult(m map[string]any) string {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(data)
}
