package dynamicconfig

import (
	"context"
	"errors"
	"testing"
)

type fakeLocal struct {
	data []byte
	err  error
}

func (f *fakeLocal) Load(ctx context.Context) ([]byte, error) { return f.data, f.err }

type fakeOverlay struct {
	doc    string
	ok     bool
	getErr error
	putErr error
}

func (f *fakeOverlay) Get() (string, bool, error) { return f.doc, f.ok, f.getErr }
func (f *fakeOverlay) Put(doc string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.doc, f.ok = doc, true
	return nil
}
func (f *fakeOverlay) Delete() error {
	f.doc, f.ok = "", false
	return nil
}

const validDoc = "agents:\n  infra-agent:\n    agent_type: newrelic/infra:0.1.0\n"

func TestStore_Load_FallsBackToLocalWhenNoOverlay(t *testing.T) {
	local := &fakeLocal{data: []byte(validDoc)}
	overlay := &fakeOverlay{}
	s := New(local, overlay)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Agents) != 1 {
		t.Fatalf("expected 1 agent from local baseline, got %d", len(got.Agents))
	}
}

func TestStore_Load_OverlayWinsOutright(t *testing.T) {
	local := &fakeLocal{data: []byte(validDoc)}
	overlay := &fakeOverlay{doc: "agents: {}\n", ok: true}
	s := New(local, overlay)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Agents) != 0 {
		t.Fatalf("expected overlay to fully replace local baseline, got %d agents", len(got.Agents))
	}
}

func TestStore_Store_RejectsInvalidDoc(t *testing.T) {
	s := New(&fakeLocal{}, &fakeOverlay{})

	err := s.Store("not: [valid, agents doc")
	var invalid *ErrInvalidConfig
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestStore_Delete_FallsBackToLocal(t *testing.T) {
	local := &fakeLocal{data: []byte(validDoc)}
	overlay := &fakeOverlay{doc: "agents: {}\n", ok: true}
	s := New(local, overlay)

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}
	if len(got.Agents) != 1 {
		t.Fatalf("expected local baseline after delete, got %d agents", len(got.Agents))
	}
}
