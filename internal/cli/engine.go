package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/opencode-ai/promptchain/internal/adapters"
	"github.com/opencode-ai/promptchain/internal/agent"
	"github.com/opencode-ai/promptchain/internal/batch"
	"github.com/opencode-ai/promptchain/internal/chain"
	"github.com/opencode-ai/promptchain/internal/config"
	"github.com/opencode-ai/promptchain/internal/db"
	"github.com/opencode-ai/promptchain/internal/elements"
	"github.com/opencode-ai/promptchain/internal/events"
	"github.com/opencode-ai/promptchain/internal/httpclient"
	"github.com/opencode-ai/promptchain/internal/lock"
	"github.com/opencode-ai/promptchain/internal/logging"
	"github.com/opencode-ai/promptchain/internal/models"
	"github.com/opencode-ai/promptchain/internal/script"
	"github.com/opencode-ai/promptchain/internal/steps"
)

// engine bundles the collaborators a batch run needs.
type engine struct {
	agent    agent.Agent
	runner   *chain.Runner
	lease    *lock.Lease
	recorder *events.Recorder
	closers  []func() error
}

func (e *engine) Close() error {
	var first error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// controller builds a batch controller for c with the engine's runner,
// lease and event recorder. extra observers receive callbacks after the recorder.
func (e *engine) controller(cfg *config.Config, c *models.Chain, extra ...batch.Observer) *batch.Controller {
	observers := batch.Observers{e.recorder}
	observers = append(observers, extra...)

	ctl := &batch.Controller{
		Runner:        e.runner,
		Chain:         c,
		Mode:          batch.Mode(cfg.Batch.Mode),
		FailurePolicy: batch.FailurePolicy(cfg.Batch.FailurePolicy),
		ItemWait:      cfg.Batch.ItemWait,
		Observer:      observers,
		Logger:        logging.Component("batch"),
	}
	if e.lease != nil {
		ctl.Lease = e.lease
	}
	return ctl
}

// buildEngine wires the agent, step handlers, chain runner and run lock from cfg.
func buildEngine(ctx context.Context, cfg *config.Config, database *db.DB, adapterName string) (*engine, error) {
	e := &engine{}

	a, err := buildAgent(cfg, adapterName)
	if err != nil {
		return nil, err
	}
	e.agent = a
	if closer, ok := a.(interface{ Close() error }); ok {
		e.closers = append(e.closers, closer.Close)
	}

	client := newHTTPClient(cfg)
	kv := db.NewKVRepository(database)
	parser := elements.NewParser(logging.Component("elements"))
	executor := steps.NewExecutor(steps.Deps{
		Agent:       a,
		HTTP:        client,
		Parser:      parser,
		Sandbox:     script.NewSandbox(client, kv, logging.Component("script")),
		Logger:      logging.Component("steps"),
		SubItemWait: cfg.Batch.SubItemWait,
	})
	e.runner = chain.NewRunner(executor, parser, logging.Component("chain"), cfg.Batch.StepWait)

	store, closeStore, err := buildLockStore(ctx, cfg, database)
	if err != nil {
		e.Close()
		return nil, err
	}
	if closeStore != nil {
		e.closers = append(e.closers, closeStore)
	}
	ownerID := ""
	if store != nil {
		lease, err := lock.NewLease(store, cfg.Lock.Name, lock.Options{
			TTL:           cfg.Lock.TTL,
			RenewInterval: cfg.Lock.RenewInterval,
			Logger:        logging.Component("lock"),
		})
		if err != nil {
			e.Close()
			return nil, err
		}
		e.lease = lease
		ownerID = lease.OwnerID()
	}

	e.recorder = events.NewRecorder(db.NewEventRepository(database), logging.Component("events"), cfg.Lock.Name, ownerID)
	return e, nil
}

func buildAgent(cfg *config.Config, adapterName string) (agent.Agent, error) {
	name := strings.TrimSpace(adapterName)
	if name == "" {
		name = cfg.Agent.Adapter
	}
	opts := adapters.Options{
		BaseURL:         cfg.Agent.BaseURL,
		Model:           cfg.Agent.Model,
		Command:         cfg.Agent.Command,
		TmuxPane:        cfg.Agent.TmuxPane,
		PromptRegex:     cfg.Agent.PromptRegex,
		ResponseTimeout: cfg.Agent.ResponseTimeout,
	}
	if cfg.Agent.APIKeyEnv != "" {
		opts.APIKey = os.Getenv(cfg.Agent.APIKeyEnv)
	}
	return adapters.New(name, opts)
}

func newHTTPClient(cfg *config.Config) *httpclient.Retrying {
	client := httpclient.NewRetrying(httpclient.New(cfg.HTTP.Timeout), logging.Component("http"))
	client.MaxAttempts = cfg.HTTP.MaxAttempts
	client.Backoff = cfg.HTTP.Backoff
	return client
}

// buildLockStore returns the configured run lock store. The "none" backend
// returns a nil store.
func buildLockStore(ctx context.Context, cfg *config.Config, database *db.DB) (lock.Store, func() error, error) {
	switch cfg.Lock.Backend {
	case "none":
		return nil, nil, nil
	case "memory":
		return lock.NewMemoryStore(), nil, nil
	case "redis":
		client, err := lock.DialRedis(ctx, cfg.Lock.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewRedisStore(client, "", cfg.Lock.TTL), client.Close, nil
	case "sqlite", "":
		return db.NewLockRepository(database), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}
}
