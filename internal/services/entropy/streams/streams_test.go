package streams

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/goldenseed/entropy/internal/csprng"
	apperrors "github.com/goldenseed/entropy/internal/platform/errors"
)

func TestCreateAndGet(t *testing.T) {
	registry := NewRegistry()

	stream, err := registry.Create("acct-1", []byte("seed"))
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	if stream.ID == "" {
		t.Fatal("expected a generated stream id")
	}
	if !stream.Generator.IsDeterministic() {
		t.Fatal("expected a deterministic generator")
	}

	got, err := registry.Get("acct-1", stream.ID)
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	if got != stream {
		t.Fatal("expected the same stream instance")
	}
}

func TestCreateRejectsEmptySeed(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Create("acct-1", nil); !errors.Is(err, csprng.ErrInvalidSeed) {
		t.Fatalf("expected ErrInvalidSeed, got %v", err)
	}
}

func TestStreamsAreReproducible(t *testing.T) {
	registry := NewRegistry()

	first, err := registry.Create("acct-1", []byte("reproducible"))
	if err != nil {
		t.Fatalf("create first stream: %v", err)
	}
	second, err := registry.Create("acct-1", []byte("reproducible"))
	if err != nil {
		t.Fatalf("create second stream: %v", err)
	}

	a, err := first.Generator.Bytes(64)
	if err != nil {
		t.Fatalf("draw from first stream: %v", err)
	}
	b, err := second.Generator.Bytes(64)
	if err != nil {
		t.Fatalf("draw from second stream: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical output for identical seeds")
	}
}

func TestGetScopedToAccount(t *testing.T) {
	registry := NewRegistry()

	stream, err := registry.Create("acct-1", []byte("seed"))
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	if _, err := registry.Get("acct-2", stream.ID); !apperrors.IsCode(err, apperrors.CodeStreamNotFound) {
		t.Fatalf("expected STREAM_NOT_FOUND for foreign account, got %v", err)
	}
	if _, err := registry.Get("acct-1", "missing"); !apperrors.IsCode(err, apperrors.CodeStreamNotFound) {
		t.Fatalf("expected STREAM_NOT_FOUND for unknown id, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	registry := NewRegistry()

	stream, err := registry.Create("acct-1", []byte("seed"))
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	if err := registry.Remove("acct-1", stream.ID); err != nil {
		t.Fatalf("remove stream: %v", err)
	}
	if _, err := registry.Get("acct-1", stream.ID); !apperrors.IsCode(err, apperrors.CodeStreamNotFound) {
		t.Fatalf("expected STREAM_NOT_FOUND after removal, got %v", err)
	}
	if _, err := stream.Generator.Bytes(8); !errors.Is(err, csprng.ErrClosed) {
		t.Fatalf("expected ErrClosed after removal, got %v", err)
	}

	if err := registry.Remove("acct-1", stream.ID); !apperrors.IsCode(err, apperrors.CodeStreamNotFound) {
		t.Fatalf("expected STREAM_NOT_FOUND on double removal, got %v", err)
	}
}

func TestRemoveScopedToAccount(t *testing.T) {
	registry := NewRegistry()

	stream, err := registry.Create("acct-1", []byte("seed"))
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	if err := registry.Remove("acct-2", stream.ID); !apperrors.IsCode(err, apperrors.CodeStreamNotFound) {
		t.Fatalf("expected STREAM_NOT_FOUND for foreign account, got %v", err)
	}
	if _, err := registry.Get("acct-1", stream.ID); err != nil {
		t.Fatalf("stream should survive a foreign removal attempt: %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	registry := NewRegistry()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	registry.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var ids []string
	for range 3 {
		stream, err := registry.Create("acct-1", []byte("seed"))
		if err != nil {
			t.Fatalf("create stream: %v", err)
		}
		ids = append(ids, stream.ID)
	}
	if _, err := registry.Create("acct-2", []byte("seed")); err != nil {
		t.Fatalf("create foreign stream: %v", err)
	}

	listed := registry.List("acct-1")
	if len(listed) != 3 {
		t.Fatalf("expected 3 streams, got %d", len(listed))
	}
	if listed[0].ID != ids[2] || listed[2].ID != ids[0] {
		t.Fatal("expected newest stream first")
	}
}

func TestCloseReleasesAll(t *testing.T) {
	registry := NewRegistry()

	stream, err := registry.Create("acct-1", []byte("seed"))
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}

	if err := registry.Close(); err != nil {
		t.Fatalf("close registry: %v", err)
	}
	if _, err := stream.Generator.Bytes(8); !errors.Is(err, csprng.ErrClosed) {
		t.Fatalf("expected ErrClosed after registry close, got %v", err)
	}
	if streams := registry.List("acct-1"); len(streams) != 0 {
		t.Fatalf("expected empty registry, got %d streams", len(streams))
	}
}
