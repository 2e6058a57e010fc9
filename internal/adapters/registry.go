// Package adapters builds conversational agents from configuration.
package adapters

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opencode-ai/promptchain/internal/agent"
)

// Options carry the settings a factory may need.
type Options struct {
	BaseURL         string
	Model           string
	APIKey          string
	Command         []string
	TmuxPane        string
	PromptRegex     string
	ResponseTimeout time.Duration
}

// Factory creates an agent.
type Factory func(opts Options) (agent.Agent, error)

// Registry maps adapter names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry.
// Returns an error if a factory with the same name is already registered.
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister adds a factory to the registry, panicking on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// New builds the named agent and wraps it with the response timeout.
func (r *Registry) New(name string, opts Options) (agent.Agent, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent adapter %q (available: %v)", name, r.Names())
	}

	a, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("create %s agent: %w", name, err)
	}
	return agent.WithTimeout(a, opts.ResponseTimeout), nil
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in adapters.
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.MustRegister("chat", func(opts Options) (agent.Agent, error) { return NewChatAgent(opts) })
	DefaultRegistry.MustRegister("tmux", func(opts Options) (agent.Agent, error) { return NewTmuxAgent(opts, nil) })
	DefaultRegistry.MustRegister("pty", func(opts Options) (agent.Agent, error) { return NewPTYAgent(opts) })
	DefaultRegistry.MustRegister("echo", func(opts Options) (agent.Agent, error) { return NewEchoAgent(), nil })
}

// New builds the named agent from the default registry.
func New(name string, opts Options) (agent.Agent, error) {
	return DefaultRegistry.New(name, opts)
}

// Names returns the names of all adapters in the default registry.
func Names() []string {
	return DefaultRegistry.Names()
}
