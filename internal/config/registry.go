package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/transcriptqa/pkg/provider/embeddings"
	"github.com/MrWong99/transcriptqa/pkg/provider/llm"
	"github.com/MrWong99/transcriptqa/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned when a config entry names a provider
// no factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the name-to-constructor table of one provider kind.
type factories[P any] struct {
	kind string
	byID map[string]Factory[P]
}

func newFactories[P any](kind string) factories[P] {
	return factories[P]{kind: kind, byID: make(map[string]Factory[P])}
}

func (f factories[P]) lookup(name string) (Factory[P], error) {
	build, ok := f.byID[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, name)
	}
	return build, nil
}

// create looks up entry.Name under mu and runs the factory outside it.
func create[P any](mu *sync.RWMutex, f factories[P], entry ProviderEntry) (P, error) {
	mu.RLock()
	build, err := f.lookup(entry.Name)
	mu.RUnlock()
	if err != nil {
		var zero P
		return zero, err
	}
	return build(entry)
}

func (f factories[P]) names() []string {
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry maps the provider names used in config files to constructors.
// main registers the built-in backends; tests register stubs. A Registry is
// safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	llm        factories[llm.Provider]
	embeddings factories[embeddings.Provider]
	stt        factories[stt.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactories[llm.Provider]("llm"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
		stt:        newFactories[stt.Provider]("stt"),
	}
}

// RegisterLLM registers f under name, replacing any earlier factory.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.byID[name] = f
}

func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings.byID[name] = f
}

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.byID[name] = f
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return create(&r.mu, r.llm, entry)
}

func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return create(&r.mu, r.embeddings, entry)
}

func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return create(&r.mu, r.stt, entry)
}

// LLMNames returns the registered LLM names, sorted.
func (r *Registry) LLMNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.names()
}

func (r *Registry) EmbeddingsNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.embeddings.names()
}

func (r *Registry) STTNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.names()
}
