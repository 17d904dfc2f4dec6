package engine

import "testing"

func TestBuildStateBackendFromDSNEmptyDefaultsToMemory(t *testing.T) {
	backend, err := BuildStateBackendFromDSN("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*MemoryStateBackend); !ok {
		t.Fatalf("expected an empty DSN to default to the memory backend, got %T", backend)
	}
}

func TestBuildStateBackendFromDSNMemoryScheme(t *testing.T) {
	backend, err := BuildStateBackendFromDSN("memory://")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*MemoryStateBackend); !ok {
		t.Fatalf("expected memory:// to build a MemoryStateBackend, got %T", backend)
	}
}

func TestBuildStateBackendFromDSNRejectsUnknownScheme(t *testing.T) {
	if _, err := BuildStateBackendFromDSN("redis://localhost:6379"); err == nil {
		t.Fatalf("expected an unsupported scheme to be rejected")
	}
}
