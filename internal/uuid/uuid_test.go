package uuid

import (
	"testing"

	"github.com/google/uuid"
)

func TestNew(t *testing.T) {
	id1 := New()
	id2 := New()

	if len(id1) == 0 {
		t.Error("UUID should not be empty")
	}

	if id1 == id2 {
		t.Error("UUIDs should be unique")
	}
}

func TestNewRandom(t *testing.T) {
	id, err := NewRandom()
	if err != nil {
		t.Fatalf("NewRandom failed: %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("NewRandom returned unparseable id %q: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("expected version 4 UUID, got %d", parsed.Version())
	}
}
