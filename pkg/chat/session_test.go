package chat_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nstogner/scholarmate/pkg/chat"
	"github.com/nstogner/scholarmate/pkg/model"
	"github.com/nstogner/scholarmate/pkg/model/fake"
)

var testConfig = model.ChatConfig{
	Model:        "test-model",
	Instructions: "You are a study buddy.",
	Tools:        []model.Tool{model.ToolGoogleSearch},
}

func TestSessionManagerStartsUnbound(t *testing.T) {
	p := &fake.Provider{}
	m := chat.NewSessionManager(p, testConfig)

	if m.Current() != nil {
		t.Fatal("Current() != nil before any initialization")
	}
	if n := len(p.Handles()); n != 0 {
		t.Errorf("created %d handles before first use, want 0", n)
	}
}

func TestCurrentOrInitializeCreatesOnce(t *testing.T) {
	p := &fake.Provider{}
	m := chat.NewSessionManager(p, testConfig)
	ctx := context.Background()

	s1, err := m.CurrentOrInitialize(ctx)
	if err != nil {
		t.Fatalf("CurrentOrInitialize: %v", err)
	}
	s2, err := m.CurrentOrInitialize(ctx)
	if err != nil {
		t.Fatalf("CurrentOrInitialize: %v", err)
	}
	if s1 != s2 {
		t.Error("second call returned a different session")
	}
	if n := len(p.Handles()); n != 1 {
		t.Errorf("created %d handles, want 1", n)
	}
}

func TestInitializeReplacesSession(t *testing.T) {
	p := &fake.Provider{}
	m := chat.NewSessionManager(p, testConfig)
	ctx := context.Background()

	m.Initialize(ctx)
	first := m.Current()
	m.Initialize(ctx)
	second := m.Current()

	if first == nil || second == nil {
		t.Fatal("Initialize left the manager unbound")
	}
	if first.ID == second.ID {
		t.Error("Initialize kept the old session ID")
	}
	if n := len(p.Handles()); n != 2 {
		t.Errorf("created %d handles, want 2", n)
	}
	for i, cfg := range p.Configs() {
		if diff := cmp.Diff(testConfig, cfg); diff != "" {
			t.Errorf("handle %d config mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestInitializeFailureIsDeferred(t *testing.T) {
	boom := errors.New("api key is required")
	p := &fake.Provider{StartErr: boom}
	m := chat.NewSessionManager(p, testConfig)
	ctx := context.Background()

	m.Initialize(ctx)
	if m.Current() != nil {
		t.Fatal("Current() != nil after failed Initialize")
	}
	if !errors.Is(m.LastError(), boom) {
		t.Errorf("LastError() = %v, want %v", m.LastError(), boom)
	}

	_, err := m.CurrentOrInitialize(ctx)
	if !errors.Is(err, chat.ErrSessionUnavailable) {
		t.Fatalf("err = %v, want ErrSessionUnavailable", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want it to wrap the cause", err)
	}
}

func TestFailedInitializeDropsPreviousSession(t *testing.T) {
	p := &fake.Provider{}
	m := chat.NewSessionManager(p, testConfig)
	ctx := context.Background()

	m.Initialize(ctx)
	if m.Current() == nil {
		t.Fatal("expected a bound session")
	}

	p.StartErr = errors.New("unreachable")
	m.Initialize(ctx)
	if m.Current() != nil {
		t.Error("stale session survived a failed re-initialization")
	}

	p.StartErr = nil
	if _, err := m.CurrentOrInitialize(ctx); err != nil {
		t.Fatalf("recovery after failure: %v", err)
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v after recovery, want nil", m.LastError())
	}
}
