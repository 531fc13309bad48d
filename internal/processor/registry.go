package processor

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

type ProcessorRegistry interface {
	Register(string, RecordProcessor)
	Get(string) (RecordProcessor, bool)
	AvailableProcessors() []string
}

// Registry maps a source kind to the processor for its records
type Registry struct {
	processors map[string]RecordProcessor
	mu         sync.RWMutex
}

func NewRegistry(processors ...RecordProcessor) ProcessorRegistry {
	registry := Registry{
		processors: make(map[string]RecordProcessor),
	}

	for _, process := range processors {
		registry.Register(process.Kind(), process)
	}

	return &registry
}

func (r *Registry) Register(kind string, processor RecordProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processors[kind] = processor

	log.Info().
		Str("kind", kind).
		Str("processor", processor.Name()).
		Msg("Registered record processor")
}

func (r *Registry) Get(kind string) (RecordProcessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	processor, exists := r.processors[kind]
	return processor, exists
}

// AvailableProcessors returns the registered source kinds, sorted
func (r *Registry) AvailableProcessors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.processors))
	for kind := range r.processors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	return kinds
}
