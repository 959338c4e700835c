// Package streams tracks named deterministic generators so callers can
// draw reproducible sequences across requests.
package streams

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/goldenseed/entropy/internal/csprng"
	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
	"github.com/goldenseed/entropy/internal/platform/id"
)

// Stream is a deterministic generator registered under a stable id.
type Stream struct {
	ID        string
	AccountID string
	CreatedAt time.Time
	Generator *csprng.Generator
}

// Registry holds the live streams for all accounts.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Stream
	now     func() time.Time
}

// NewRegistry creates an empty stream registry.
func NewRegistry() *Registry {
	return &Registry{
		streams: make(map[string]*Stream),
		now:     time.Now,
	}
}

// Create registers a deterministic stream seeded from the given bytes.
func (r *Registry) Create(accountID string, seed []byte) (*Stream, error) {
	gen, err := csprng.NewSeeded(seed)
	if err != nil {
		return nil, err
	}
	return r.register(accountID, gen)
}

// CreateInt registers a deterministic stream seeded from a non-negative
// integer. Equal integer and canonical byte seeds yield equal streams.
func (r *Registry) CreateInt(accountID string, seed int64) (*Stream, error) {
	gen, err := csprng.NewSeededInt(seed)
	if err != nil {
		return nil, err
	}
	return r.register(accountID, gen)
}

func (r *Registry) register(accountID string, gen *csprng.Generator) (*Stream, error) {
	streamID, err := id.New()
	if err != nil {
		_ = gen.Close()
		return nil, fmt.Errorf("generate stream id: %w", err)
	}
	stream := &Stream{
		ID:        streamID,
		AccountID: accountID,
		CreatedAt: r.now().UTC(),
		Generator: gen,
	}

	r.mu.Lock()
	r.streams[stream.ID] = stream
	r.mu.Unlock()
	return stream, nil
}

// Get returns the stream with the given id, scoped to the owning account.
func (r *Registry) Get(accountID, streamID string) (*Stream, error) {
	r.mu.Lock()
	stream, ok := r.streams[streamID]
	r.mu.Unlock()

	if !ok || stream.AccountID != accountID {
		return nil, apperrors.WithMetadata(apperrors.CodeStreamNotFound, "stream not found",
			map[string]string{"stream_id": streamID})
	}
	return stream, nil
}

// Remove closes and forgets a stream. Removing an unknown stream reports
// STREAM_NOT_FOUND.
func (r *Registry) Remove(accountID, streamID string) error {
	r.mu.Lock()
	stream, ok := r.streams[streamID]
	if ok && stream.AccountID == accountID {
		delete(r.streams, streamID)
	}
	r.mu.Unlock()

	if !ok || stream.AccountID != accountID {
		return apperrors.WithMetadata(apperrors.CodeStreamNotFound, "stream not found",
			map[string]string{"stream_id": streamID})
	}
	return stream.Generator.Close()
}

// List returns the streams owned by an account, newest first.
func (r *Registry) List(accountID string) []*Stream {
	r.mu.Lock()
	defer r.mu.Unlock()

	var owned []*Stream
	for _, stream := range r.streams {
		if stream.AccountID == accountID {
			owned = append(owned, stream)
		}
	}
	sortStreams(owned)
	return owned
}

// Close releases every registered stream.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, stream := range r.streams {
		if err := stream.Generator.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.streams, id)
	}
	return firstErr
}

func sortStreams(streams []*Stream) {
	slices.SortFunc(streams, func(a, b *Stream) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
