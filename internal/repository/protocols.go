package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/trialworks/formengine/pkg/model"
	"go.uber.org/zap"
)

// ErrProtocolNotFound is returned when no protocol exists for an id.
var ErrProtocolNotFound = fmt.Errorf("protocol not found")

// Protocol is one registered visit form definition: the ordered field list
// a data-entry surface fills out.
type Protocol struct {
	ID     string
	Name   string
	Fields []model.FieldSchema
}

// ProtocolRepository keeps registered visit form definitions in memory.
// The engine performs no persistence; both UI surfaces share one
// registered field list per visit through this registry.
type ProtocolRepository struct {
	mu        sync.RWMutex
	protocols map[string]*Protocol
	logger    *zap.Logger
}

// NewProtocolRepository creates a new ProtocolRepository
func NewProtocolRepository(logger *zap.Logger) *ProtocolRepository {
	return &ProtocolRepository{
		protocols: make(map[string]*Protocol),
		logger:    logger,
	}
}

// Save registers a protocol definition, assigning an id when absent.
func (r *ProtocolRepository) Save(ctx context.Context, p *Protocol) error {
	if len(p.Fields) == 0 {
		return fmt.Errorf("protocol has no fields")
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	r.mu.Lock()
	r.protocols[p.ID] = p
	r.mu.Unlock()

	r.logger.Info("protocol registered",
		zap.String("protocol_id", p.ID),
		zap.String("name", p.Name),
		zap.Int("fields", len(p.Fields)),
	)
	return nil
}

// Get retrieves a protocol by id.
func (r *ProtocolRepository) Get(ctx context.Context, id string) (*Protocol, error) {
	r.mu.RLock()
	p, ok := r.protocols[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProtocolNotFound, id)
	}
	return p, nil
}

// List returns all registered protocols.
func (r *ProtocolRepository) List(ctx context.Context) ([]*Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Protocol, 0, len(r.protocols))
	for _, p := range r.protocols {
		out = append(out, p)
	}
	return out, nil
}

// Delete removes a protocol by id.
func (r *ProtocolRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.protocols[id]; !ok {
		return fmt.Errorf("%w: %s", ErrProtocolNotFound, id)
	}
	delete(r.protocols, id)
	return nil
}
