package chat_test

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nstogner/scholarmate/pkg/chat"
	"github.com/nstogner/scholarmate/pkg/domain"
	"github.com/nstogner/scholarmate/pkg/model"
	"github.com/nstogner/scholarmate/pkg/model/fake"
)

type call struct {
	Text     string
	Metadata *domain.GroundingMetadata
}

func newStreamer(p *fake.Provider) (*chat.SessionManager, *chat.Streamer) {
	sessions := chat.NewSessionManager(p, testConfig)
	return sessions, chat.NewStreamer(sessions)
}

// exchange runs one SendAndStream, folding fragments into a model message.
func exchange(t *testing.T, s *chat.Streamer, text string) (domain.Message, []call, error) {
	t.Helper()
	msg := domain.NewMessage(domain.RoleModel, "")
	var calls []call
	err := s.SendAndStream(context.Background(), text, func(delta string, md *domain.GroundingMetadata) {
		calls = append(calls, call{Text: delta, Metadata: md})
		msg.Apply(delta, md)
	})
	return msg, calls, err
}

func TestSendAndStreamEndToEnd(t *testing.T) {
	physics := &domain.GroundingMetadata{Sources: []domain.GroundingSource{{URI: "https://x.test", Title: "Physics"}}}
	p := &fake.Provider{Replies: []fake.Reply{{
		Fragments: []model.Fragment{
			{Text: "Gravity"},
			{Text: " pulls"},
			{Text: " masses.", Metadata: physics},
		},
	}}}
	_, s := newStreamer(p)

	msg, _, err := exchange(t, s, "Explain gravity")
	if err != nil {
		t.Fatalf("SendAndStream: %v", err)
	}

	if msg.Role != domain.RoleModel {
		t.Errorf("Role = %q, want %q", msg.Role, domain.RoleModel)
	}
	if msg.Content != "Gravity pulls masses." {
		t.Errorf("Content = %q, want %q", msg.Content, "Gravity pulls masses.")
	}
	if diff := cmp.Diff(physics, msg.Metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
	if msg.IsError {
		t.Error("IsError = true, want false")
	}

	sends := p.Sends()
	if len(sends) != 1 || sends[0].Text != "Explain gravity" {
		t.Errorf("Sends = %+v, want one send of %q", sends, "Explain gravity")
	}
	if p.OpenStreams() != 0 {
		t.Errorf("OpenStreams = %d after completion, want 0", p.OpenStreams())
	}
}

func TestSendAndStreamDeliversDeltasInOrder(t *testing.T) {
	deltas := []string{"a", "b", "", "c", "dd", "e"}
	var frags []model.Fragment
	for _, d := range deltas {
		frags = append(frags, model.Fragment{Text: d})
	}
	p := &fake.Provider{Replies: []fake.Reply{{Fragments: frags}}}
	_, s := newStreamer(p)

	msg, calls, err := exchange(t, s, "letters")
	if err != nil {
		t.Fatalf("SendAndStream: %v", err)
	}

	var got []string
	for _, c := range calls {
		got = append(got, c.Text)
	}
	if diff := cmp.Diff(deltas, got); diff != "" {
		t.Errorf("callback deltas mismatch (-want +got):\n%s", diff)
	}
	if msg.Content != "abcdde" {
		t.Errorf("Content = %q, want %q", msg.Content, "abcdde")
	}
}

func TestSendAndStreamPullsOnlyAfterCallbackReturns(t *testing.T) {
	frags := []model.Fragment{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	p := &fake.Provider{Replies: []fake.Reply{{Fragments: frags}}}
	_, s := newStreamer(p)

	delivered := 0
	err := s.SendAndStream(context.Background(), "count", func(string, *domain.GroundingMetadata) {
		delivered++
		if got := p.NextCalls(); got != delivered {
			t.Errorf("fragment %d delivered after %d pulls, want %d", delivered, got, delivered)
		}
	})
	if err != nil {
		t.Fatalf("SendAndStream: %v", err)
	}
	if delivered != len(frags) {
		t.Errorf("delivered %d fragments, want %d", delivered, len(frags))
	}
	// One extra pull observes the end of the stream.
	if got := p.NextCalls(); got != len(frags)+1 {
		t.Errorf("NextCalls = %d, want %d", got, len(frags)+1)
	}
}

func TestSendAndStreamMetadataLastWriteWins(t *testing.T) {
	first := &domain.GroundingMetadata{Sources: []domain.GroundingSource{{URI: "https://first.test"}}}
	last := &domain.GroundingMetadata{Sources: []domain.GroundingSource{{URI: "https://last.test", Title: "Last"}}}
	p := &fake.Provider{Replies: []fake.Reply{{
		Fragments: []model.Fragment{
			{Text: "one", Metadata: first},
			{Text: " two"},
			{Text: " three", Metadata: last},
			{Text: " four", Metadata: &domain.GroundingMetadata{}},
			{Text: "."},
		},
	}}}
	_, s := newStreamer(p)

	msg, calls, err := exchange(t, s, "count")
	if err != nil {
		t.Fatalf("SendAndStream: %v", err)
	}
	if diff := cmp.Diff(last, msg.Metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
	if calls[3].Metadata != nil {
		t.Errorf("empty metadata delivered as %+v, want nil", calls[3].Metadata)
	}
}

func TestSendAndStreamSessionReplacementIsTotal(t *testing.T) {
	p := &fake.Provider{}
	sessions, s := newStreamer(p)
	ctx := context.Background()

	if _, _, err := exchange(t, s, "My name is Ada."); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	msg, _, err := exchange(t, s, "What did I just say?")
	if err != nil {
		t.Fatalf("second exchange: %v", err)
	}
	if msg.Content != "You said: My name is Ada." {
		t.Fatalf("same-session recall = %q", msg.Content)
	}

	sessions.Initialize(ctx)

	msg, _, err = exchange(t, s, "What did I just say?")
	if err != nil {
		t.Fatalf("post-reset exchange: %v", err)
	}
	if msg.Content != "I don't recall anything yet." {
		t.Errorf("post-reset reply = %q, leaked prior context", msg.Content)
	}

	sends := p.Sends()
	if len(sends) != 3 {
		t.Fatalf("len(Sends) = %d, want 3", len(sends))
	}
	if sends[0].HandleID != sends[1].HandleID {
		t.Error("exchanges before reset used different handles")
	}
	if sends[2].HandleID == sends[1].HandleID {
		t.Error("exchange after reset used the replaced handle")
	}
	if len(sends[2].History) != 0 {
		t.Errorf("post-reset handle history = %v, want empty", sends[2].History)
	}
}

func TestSendAndStreamFailsFastWithoutSession(t *testing.T) {
	p := &fake.Provider{StartErr: errors.New("no credential")}
	_, s := newStreamer(p)

	_, calls, err := exchange(t, s, "hello")
	if !errors.Is(err, chat.ErrSessionUnavailable) {
		t.Fatalf("err = %v, want ErrSessionUnavailable", err)
	}
	if errors.Is(err, chat.ErrStream) {
		t.Error("err also matches ErrStream")
	}
	if len(calls) != 0 {
		t.Errorf("onFragment called %d times, want 0", len(calls))
	}
	if n := len(p.Sends()); n != 0 {
		t.Errorf("issued %d sends, want 0", n)
	}
}

func TestSendAndStreamPartialFailureKeepsFragments(t *testing.T) {
	boom := errors.New("connection reset")
	p := &fake.Provider{Replies: []fake.Reply{{
		Fragments: []model.Fragment{{Text: "Paris"}, {Text: " is"}},
		Err:       boom,
	}}}
	_, s := newStreamer(p)

	msg, calls, err := exchange(t, s, "Capital of France?")
	if !errors.Is(err, chat.ErrStream) {
		t.Fatalf("err = %v, want ErrStream", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want it to wrap the cause", err)
	}
	want := []call{{Text: "Paris"}, {Text: " is"}}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if msg.Content != "Paris is" {
		t.Errorf("Content = %q, want %q", msg.Content, "Paris is")
	}
	if p.OpenStreams() != 0 {
		t.Errorf("OpenStreams = %d after failure, want 0", p.OpenStreams())
	}
}

func TestSendAndStreamOpenFailureIsNotRetried(t *testing.T) {
	p := &fake.Provider{Replies: []fake.Reply{{OpenErr: errors.New("403 permission denied")}}}
	_, s := newStreamer(p)

	_, calls, err := exchange(t, s, "hello")
	if !errors.Is(err, chat.ErrStream) {
		t.Fatalf("err = %v, want ErrStream", err)
	}
	if len(calls) != 0 {
		t.Errorf("onFragment called %d times, want 0", len(calls))
	}
	if n := len(p.Sends()); n != 1 {
		t.Errorf("issued %d sends, want exactly 1", n)
	}
}

func TestSendAndStreamRejectsConcurrentExchange(t *testing.T) {
	block := make(chan struct{})
	p := &fake.Provider{Replies: []fake.Reply{{
		Fragments: []model.Fragment{{Text: "slow"}},
		Block:     block,
	}}}
	_, s := newStreamer(p)

	done := make(chan error, 1)
	go func() {
		done <- s.SendAndStream(context.Background(), "first", nil)
	}()
	for !s.Busy() {
		runtime.Gosched()
	}

	err := s.SendAndStream(context.Background(), "second", func(string, *domain.GroundingMetadata) {
		t.Error("onFragment called for rejected exchange")
	})
	if !errors.Is(err, chat.ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if s.Busy() {
		t.Error("Busy() = true after exchange resolved")
	}
	for _, send := range p.Sends() {
		if send.Text == "second" {
			t.Error("rejected exchange reached the remote")
		}
	}
}

func TestSendAndStreamHonorsCancellation(t *testing.T) {
	p := &fake.Provider{Replies: []fake.Reply{{
		Fragments: []model.Fragment{{Text: "never"}},
		Block:     make(chan struct{}),
	}}}
	_, s := newStreamer(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SendAndStream(ctx, "hello", nil)
	if !errors.Is(err, chat.ErrStream) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrStream wrapping context.Canceled", err)
	}
	if p.OpenStreams() != 0 {
		t.Errorf("OpenStreams = %d, want 0", p.OpenStreams())
	}
}
