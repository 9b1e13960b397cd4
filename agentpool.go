// Package agentpool provides a high-level façade over the credential pool,
// the tool executor, conversation state and the agent loop, enabling rapid
// construction of a pooled conversational agent. Most applications interact
// with this package by:
//  1. Creating an AgentPool via New() from a validated config
//  2. Registering domain tools (the protocol tools come built in)
//  3. Calling HandleTurn for every inbound user message
//
// The façade delegates orchestration to agent.Agent while keeping setup and
// usage ergonomics concise. The in-memory store defaults are safe for local
// development and testing; multi-process deployments use the sqlite driver so
// independent instances share one credential pool.
package agentpool

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentpool/agent"
	"github.com/hupe1980/agentpool/config"
	"github.com/hupe1980/agentpool/logging"
	"github.com/hupe1980/agentpool/model"
	"github.com/hupe1980/agentpool/model/anthropic"
	"github.com/hupe1980/agentpool/model/openai"
	"github.com/hupe1980/agentpool/pool"
	"github.com/hupe1980/agentpool/state"
	"github.com/hupe1980/agentpool/store"
	"github.com/hupe1980/agentpool/tool"
	"github.com/hupe1980/agentpool/transcript"
)

// Options configures the AgentPool instance beyond what config.Config
// carries. Any unset service is initialized with an in-memory implementation.
type Options struct {
	// Store overrides the shared coordination store chosen by the config.
	Store store.Store
	// Transcripts overrides the transcript store chosen by the config.
	Transcripts transcript.Store
	// ModelFactory overrides the provider adapters, mainly for testing.
	ModelFactory pool.ModelFactory
	// Logger defaults to a NoOp logger if nil.
	Logger logging.Logger
}

// AgentPool is the high-level façade aggregating the pool, executor and loop.
type AgentPool struct {
	cfg      *config.Config
	pool     *pool.Pool
	executor *tool.Executor
	states   *state.Manager
	agent    *agent.Agent
	closers  []func() error
}

// New wires an AgentPool from a validated config with optional overrides.
func New(cfg *config.Config, optFns ...func(o *Options)) (*AgentPool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("agentpool: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ap := &AgentPool{cfg: cfg}

	kv := opts.Store
	transcripts := opts.Transcripts
	if kv == nil || transcripts == nil {
		builtKV, builtTranscripts, closers, err := buildStores(cfg)
		if err != nil {
			return nil, err
		}
		if kv == nil {
			kv = builtKV
		}
		if transcripts == nil {
			transcripts = builtTranscripts
		}
		ap.closers = closers
	}

	factory := opts.ModelFactory
	if factory == nil {
		factory = providerFactory(cfg.Model)
	}

	creds := make([]pool.Credential, len(cfg.Credentials))
	for i, c := range cfg.Credentials {
		creds[i] = pool.Credential{Name: c.Name, APIKey: c.APIKey, Capacity: c.Capacity}
	}

	p, err := pool.New(creds, kv, factory, pool.Options{
		LockExpiry:     cfg.Pool.LockExpiry,
		RescanInterval: cfg.Pool.RescanInterval,
		Logger:         opts.Logger,
	})
	if err != nil {
		ap.Close()
		return nil, err
	}

	executor := tool.NewExecutor(opts.Logger)
	states := state.NewManager()

	a, err := agent.New(p, executor, states, transcripts, agent.Options{
		MaxIterations: cfg.Loop.MaxIterations,
		MaxRetries:    cfg.Loop.MaxRetries,
		MinToolCalls:  cfg.Loop.MinToolCalls,
		BatchSoftCap:  cfg.Loop.BatchSoftCap,
		TokenBuffer:   cfg.Loop.TokenBuffer,
		RecentWindow:  cfg.Loop.RecentWindow,
		BorrowTimeout: cfg.Pool.BorrowTimeout,
		Logger:        opts.Logger,
	})
	if err != nil {
		ap.Close()
		return nil, err
	}

	ap.pool = p
	ap.executor = executor
	ap.states = states
	ap.agent = a

	return ap, nil
}

// RegisterTool adds a domain tool to the executor.
func (ap *AgentPool) RegisterTool(t tool.Tool) error { return ap.executor.Register(t) }

// HandleTurn processes one user message and returns the reply text.
func (ap *AgentPool) HandleTurn(ctx context.Context, sessionKey, userText string) (string, error) {
	return ap.agent.HandleTurn(ctx, sessionKey, userText)
}

// Pool exposes the underlying credential pool, mainly for operational tooling.
func (ap *AgentPool) Pool() *pool.Pool { return ap.pool }

// States exposes the conversation state manager.
func (ap *AgentPool) States() *state.Manager { return ap.states }

// Close releases any file-backed stores.
func (ap *AgentPool) Close() error {
	var firstErr error
	for _, closeFn := range ap.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildStores(cfg *config.Config) (store.Store, transcript.Store, []func() error, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		kv, err := store.NewSQLiteStore(cfg.Store.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		transcripts, err := transcript.NewSQLiteStore(cfg.Store.DSN)
		if err != nil {
			kv.Close()
			return nil, nil, nil, err
		}
		return kv, transcripts, []func() error{kv.Close, transcripts.Close}, nil
	default: // memory
		return store.NewInMemoryStore(), transcript.NewInMemoryStore(), nil, nil
	}
}

func providerFactory(mc config.ModelConfig) pool.ModelFactory {
	switch mc.Provider {
	case "anthropic":
		return func(cred pool.Credential) (model.Model, error) {
			return anthropic.NewModel(func(o *anthropic.Options) {
				o.APIKey = cred.APIKey
				o.Model = anthropicsdk.Model(mc.Name)
			}), nil
		}
	default: // openai
		return func(cred pool.Credential) (model.Model, error) {
			return openai.NewModel(func(o *openai.Options) {
				o.APIKey = cred.APIKey
				o.Model = mc.Name
			}), nil
		}
	}
}
