// Package orchestrator routes one user utterance through an ordered list
// of agent personas and records every exchange in the conversation store.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"voicestack.local/voicegate/internal/agent"
	"voicestack.local/voicegate/internal/dispatch"
	"voicestack.local/voicegate/internal/events"
	"voicestack.local/voicegate/internal/faults"
	"voicestack.local/voicegate/internal/ids"
	"voicestack.local/voicegate/internal/model"
	"voicestack.local/voicegate/internal/store"
)

const defaultHistoryTurnLimit = 20

type Config struct {
	// Provider names the registered model provider used for completions.
	Provider string
	// Model is the model identifier forwarded to the provider.
	Model string
	// Chain controls whether later agents in a request see earlier agents'
	// completions as extra context. Per-request override via Request.Chain.
	Chain bool
	// IncludeHistory controls whether prior session turns are included as
	// conversation context. Per-request override via Request.IncludeHistory.
	IncludeHistory bool
	// HistoryTurnLimit caps how many of the most recent session turns are
	// loaded as context. Zero means the default.
	HistoryTurnLimit int
	// AgentTimeout bounds each individual provider call. Zero means the
	// request context's deadline is the only bound.
	AgentTimeout time.Duration
	Temperature  float64
	MaxTokens    int
}

// Request is one orchestration call: run the utterance through the listed
// agents, in that order.
type Request struct {
	SessionID      string
	Utterance      string
	Agents         []agent.ID
	Chain          *bool
	IncludeHistory *bool
	AudioRef       string
}

// Result is one agent's outcome. Output is set on success even when the
// durable write failed; Persisted tells the caller whether a retry of the
// write is needed.
type Result struct {
	AgentID    agent.ID          `json:"agent_id"`
	Status     store.TurnStatus  `json:"status"`
	Output     string            `json:"output,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	Persisted  bool              `json:"persisted"`
	OccurredAt time.Time         `json:"occurred_at"`
	Turn       *store.TurnRecord `json:"turn,omitempty"`
}

type Orchestrator struct {
	cfg        Config
	providers  *model.Registry
	store      store.Store
	dispatcher *dispatch.Dispatcher
	logger     *log.Logger
}

func New(cfg Config, providers *model.Registry, st store.Store, dispatcher *dispatch.Dispatcher, logger *log.Logger) *Orchestrator {
	if cfg.HistoryTurnLimit <= 0 {
		cfg.HistoryTurnLimit = defaultHistoryTurnLimit
	}
	return &Orchestrator{
		cfg:        cfg,
		providers:  providers,
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run executes the request and returns exactly one result per requested
// agent, in the caller's order. Validation failures return an error before
// any provider call is made; after that point per-agent failures are
// reported inside the result list, never as a request-level error.
func (o *Orchestrator) Run(ctx context.Context, req Request) ([]Result, error) {
	resolved, err := o.validate(req)
	if err != nil {
		return nil, err
	}

	provider, ok := o.providers.Get(o.cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: no provider registered as %q", faults.ErrInvalidRequest, o.cfg.Provider)
	}

	traceID := ids.New()
	utterance := strings.TrimSpace(req.Utterance)

	var history []model.Message
	if boolOr(req.IncludeHistory, o.cfg.IncludeHistory) {
		history, err = o.sessionHistory(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	}

	if boolOr(req.Chain, o.cfg.Chain) {
		return o.runChained(ctx, req, resolved, provider, history, traceID, utterance), nil
	}
	return o.runConcurrent(ctx, req, resolved, provider, history, traceID, utterance), nil
}

func (o *Orchestrator) validate(req Request) ([]agent.Agent, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", faults.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Utterance) == "" {
		return nil, fmt.Errorf("%w: utterance is empty", faults.ErrInvalidRequest)
	}
	if len(req.Agents) == 0 {
		return nil, fmt.Errorf("%w: at least one agent is required", faults.ErrInvalidRequest)
	}

	resolved := make([]agent.Agent, 0, len(req.Agents))
	for _, id := range req.Agents {
		a, err := agent.Lookup(id)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, a)
	}
	return resolved, nil
}

// runChained executes agents sequentially so each agent sees the completed
// outputs of the agents before it.
func (o *Orchestrator) runChained(ctx context.Context, req Request, agents []agent.Agent, provider model.Provider, history []model.Message, traceID, utterance string) []Result {
	results := make([]Result, 0, len(agents))
	var prior []model.Message
	for _, a := range agents {
		res := o.runAgent(ctx, req, a, provider, history, prior, traceID, utterance)
		if res.Status == store.TurnStatusCompleted {
			prior = append(prior, model.Message{
				Role:    model.RoleAssistant,
				Content: fmt.Sprintf("[%s] %s", a.DisplayName, res.Output),
			})
		}
		results = append(results, res)
	}
	return results
}

// runConcurrent fans the agents out in parallel and joins the results back
// into the caller's order.
func (o *Orchestrator) runConcurrent(ctx context.Context, req Request, agents []agent.Agent, provider model.Provider, history []model.Message, traceID, utterance string) []Result {
	results := make([]Result, len(agents))
	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(i int, a agent.Agent) {
			defer wg.Done()
			results[i] = o.runAgent(ctx, req, a, provider, history, nil, traceID, utterance)
		}(i, a)
	}
	wg.Wait()
	return results
}

// runAgent drives one agent through pending -> completed | failed. Gateway
// failures are recorded as failed turns; a store failure leaves the text in
// the result flagged as unpersisted.
func (o *Orchestrator) runAgent(ctx context.Context, req Request, a agent.Agent, provider model.Provider, history, prior []model.Message, traceID, utterance string) Result {
	o.publish(ctx, events.TypeTurnStarted, traceID, req.SessionID, a.ID, "", nil)

	callCtx := ctx
	if o.cfg.AgentTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.AgentTimeout)
		defer cancel()
	}

	messages := make([]model.Message, 0, len(history)+len(prior)+1)
	messages = append(messages, history...)
	messages = append(messages, prior...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: utterance})

	resp, err := provider.Complete(callCtx, model.CompletionRequest{
		Model:        o.cfg.Model,
		Messages:     messages,
		MaxTokens:    o.cfg.MaxTokens,
		Temperature:  o.cfg.Temperature,
		SystemPrompt: a.SystemPrompt,
	})
	if err != nil {
		return o.recordFailure(ctx, req, a, traceID, utterance, err)
	}
	return o.recordCompletion(ctx, req, a, traceID, utterance, resp.Content)
}

func (o *Orchestrator) recordCompletion(ctx context.Context, req Request, a agent.Agent, traceID, utterance, output string) Result {
	res := Result{
		AgentID:    a.ID,
		Status:     store.TurnStatusCompleted,
		Output:     output,
		OccurredAt: time.Now().UTC(),
	}

	turn, err := o.store.AppendTurn(ctx, store.TurnDraft{
		SessionID: req.SessionID,
		AgentID:   string(a.ID),
		Input:     utterance,
		Output:    output,
		Status:    store.TurnStatusCompleted,
		AudioRef:  req.AudioRef,
	})
	if err != nil {
		o.logger.Printf("orchestrator append failed session=%s agent=%s err=%v", req.SessionID, a.ID, err)
		res.ErrorKind = faults.KindPersistence
		res.Error = err.Error()
		o.publish(ctx, events.TypeTurnCompleted, traceID, req.SessionID, a.ID, "", map[string]any{"persisted": false})
		return res
	}

	res.Persisted = true
	res.Turn = &turn
	res.OccurredAt = turn.CreatedAt
	o.publish(ctx, events.TypeTurnCompleted, traceID, req.SessionID, a.ID, turn.TurnID, map[string]any{"persisted": true})
	return res
}

func (o *Orchestrator) recordFailure(ctx context.Context, req Request, a agent.Agent, traceID, utterance string, cause error) Result {
	kind := faults.Kind(cause)
	if errors.Is(cause, context.Canceled) {
		kind = faults.KindGatewayTimeout
	}
	o.logger.Printf("orchestrator agent failed session=%s agent=%s kind=%s err=%v", req.SessionID, a.ID, kind, cause)

	res := Result{
		AgentID:    a.ID,
		Status:     store.TurnStatusFailed,
		ErrorKind:  kind,
		Error:      cause.Error(),
		OccurredAt: time.Now().UTC(),
	}

	turn, err := o.store.AppendTurn(ctx, store.TurnDraft{
		SessionID: req.SessionID,
		AgentID:   string(a.ID),
		Input:     utterance,
		Status:    store.TurnStatusFailed,
		ErrorKind: kind,
		Error:     cause.Error(),
	})
	if err != nil {
		o.logger.Printf("orchestrator append failed session=%s agent=%s err=%v", req.SessionID, a.ID, err)
	} else {
		res.Persisted = true
		res.Turn = &turn
		res.OccurredAt = turn.CreatedAt
	}

	o.publish(ctx, events.TypeTurnFailed, traceID, req.SessionID, a.ID, res.turnID(), map[string]any{"error_kind": kind})
	return res
}

func (r Result) turnID() string {
	if r.Turn == nil {
		return ""
	}
	return r.Turn.TurnID
}

func (o *Orchestrator) sessionHistory(ctx context.Context, sessionID string) ([]model.Message, error) {
	turns, err := o.store.ListTurns(ctx, sessionID, o.cfg.HistoryTurnLimit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: load session history: %v", faults.ErrPersistence, err)
	}

	messages := make([]model.Message, 0, len(turns)*2)
	for _, turn := range turns {
		if turn.Status != store.TurnStatusCompleted {
			continue
		}
		messages = append(messages,
			model.Message{Role: model.RoleUser, Content: turn.Input},
			model.Message{Role: model.RoleAssistant, Content: turn.Output},
		)
	}
	return messages, nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType events.Type, traceID, sessionID string, agentID agent.ID, turnID string, payload map[string]any) {
	if o.dispatcher == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	o.dispatcher.Dispatch(ctx, events.Envelope{
		EventID:    ids.New(),
		TraceID:    traceID,
		OccurredAt: time.Now().UTC(),
		EventType:  eventType,
		SessionID:  sessionID,
		AgentID:    string(agentID),
		TurnID:     turnID,
		Payload:    raw,
	})
}

func boolOr(override *bool, fallback bool) bool {
	if override != nil {
		return *override
	}
	return fallback
}
