package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dm-relay/internal/chat"
	"dm-relay/internal/model"
	"dm-relay/internal/session"
	sessiondomain "dm-relay/internal/session/domain"
	sessionrepo "dm-relay/internal/session/repository"
	"dm-relay/internal/telemetry"
	"dm-relay/internal/transcript"
	transcriptrepo "dm-relay/internal/transcript/repository"
)

type plainHasher struct{}

func (plainHasher) Hash(raw string) (string, error) { return "tok:" + raw, nil }
func (plainHasher) Matches(raw, token string) bool { return token == "tok:"+raw }

// scriptedGenerator returns canned replies and records the history it was given.
type scriptedGenerator struct {
	replies   []string
	histories [][]model.Turn
}

func (g *scriptedGenerator) Generate(ctx context.Context, history []model.Turn, text string) string {
	g.histories = append(g.histories, history)
	if len(g.replies) == 0 {
		return "ok"
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r
}

type failingSessions struct {
	getErr    error
	updateErr error
	inner     Sessions
}

func (f *failingSessions) GetOrCreate(ctx context.Context, raw string) (*sessiondomain.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.inner.GetOrCreate(ctx, raw)
}

func (f *failingSessions) Update(ctx context.Context, s *sessiondomain.Session, u, a string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.inner.Update(ctx, s, u, a)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []*telemetry.ExchangeEvent
	got    chan struct{}
}

func (c *captureEmitter) Emit(ctx context.Context, e *telemetry.ExchangeEvent) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

type fixture struct {
	svc         *Service
	sessions    *sessionrepo.MemoryRepository
	transcripts *transcriptrepo.MemoryRepository
	log         *transcript.Log
	gen         *scriptedGenerator
	store       *session.Store
}

func newFixture(replies ...string) *fixture {
	sessions := sessionrepo.NewMemoryRepository()
	transcripts := transcriptrepo.NewMemoryRepository()
	store := session.NewStore(sessions, plainHasher{}, nil, session.Options{})
	tlog := transcript.NewLog(transcripts, plainHasher{}, nil, nil, 0)
	gen := &scriptedGenerator{replies: replies}
	return &fixture{
		svc:         NewService(nil, store, tlog, gen, nil, nil),
		sessions:    sessions,
		transcripts: transcripts,
		log:         tlog,
		gen:         gen,
		store:       store,
	}
}

func dm(sender, content string) chat.Message {
	return chat.Message{SenderID: sender, Content: content, CreatedAt: time.Now()}
}

func TestHandle_EndToEnd(t *testing.T) {
	f := newFixture("hi!", "doing well")
	ctx := context.Background()

	res, err := f.svc.Handle(ctx, dm("abc", "hello"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.Handled || res.Reply != "hi!" || !res.NewSession {
		t.Fatalf("first result = %+v", res)
	}

	sessions, _ := f.sessions.ListAll(ctx)
	if len(sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(sessions))
	}
	s := sessions[0]
	if s.UserToken == "abc" || !(plainHasher{}).Matches("abc", s.UserToken) {
		t.Errorf("session token = %q, want a token for abc", s.UserToken)
	}
	if len(s.Messages) != 2 || s.Messages[0].Content != "hello" || s.Messages[1].Content != "hi!" {
		t.Errorf("session messages = %+v", s.Messages)
	}
	entries, _ := f.transcripts.ListAll(ctx)
	if len(entries) != 1 {
		t.Fatalf("transcript entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.UserToken == "abc" || e.Content != "hello" || e.Response == nil || *e.Response != "hi!" || e.SessionRef != s.ID {
		t.Errorf("transcript entry = %+v", e)
	}

	res2, err := f.svc.Handle(ctx, dm("abc", "how are you"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res2.SessionRef != res.SessionRef || res2.NewSession {
		t.Errorf("second message should reuse session %s, got %+v", res.SessionRef, res2)
	}
	if h := f.gen.histories[1]; len(h) != 2 || h[0].Role != model.RoleUser || h[0].Content != "hello" || h[1].Role != model.RoleAssistant {
		t.Errorf("model history = %+v", h)
	}
	sessions, _ = f.sessions.ListAll(ctx)
	if len(sessions) != 1 || len(sessions[0].Messages) != 4 {
		t.Errorf("after second message: %d sessions, %d messages", len(sessions), len(sessions[0].Messages))
	}
	mine, _ := f.log.ForUser(ctx, "abc")
	if len(mine) != 2 {
		t.Errorf("ForUser = %d entries, want 2", len(mine))
	}
}

func TestHandle_IneligibleMessages(t *testing.T) {
	testCases := []struct {
		name string
		msg  chat.Message
	}{
		{"bot", chat.Message{SenderID: "bot", Content: "hi", FromBot: true}},
		{"guild", chat.Message{SenderID: "abc", Content: "hi", InGuild: true}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			res, err := f.svc.Handle(context.Background(), tc.msg)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if res.Handled || res.Reply != "" {
				t.Errorf("result = %+v, want unhandled", res)
			}
			if f.sessions.Len() != 0 || f.transcripts.Len() != 0 {
				t.Error("ineligible messages must not touch storage")
			}
			if len(f.gen.histories) != 0 {
				t.Error("ineligible messages must not reach the model")
			}
		})
	}
}

func TestHandle_LookupFailure(t *testing.T) {
	f := newFixture()
	f.svc.sessions = &failingSessions{getErr: session.ErrPersistence}

	res, err := f.svc.Handle(context.Background(), dm("abc", "hello"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Reply != ReplyLookupFailed || res.SessionRef != transcript.ErrorSessionRef {
		t.Errorf("result = %+v", res)
	}
	entries, _ := f.transcripts.ListAll(context.Background())
	if len(entries) != 1 || entries[0].Response != nil || entries[0].SessionRef != "error" {
		t.Errorf("transcript entries = %+v, want one with nil response and error ref", entries)
	}
	if len(f.gen.histories) != 0 {
		t.Error("model should not be called when lookup fails")
	}
}

func TestHandle_UpdateFailureStillReplies(t *testing.T) {
	f := newFixture("hi!")
	updateErr := errors.New("write failed")
	f.svc.sessions = &failingSessions{inner: f.store, updateErr: updateErr}

	res, err := f.svc.Handle(context.Background(), dm("abc", "hello"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Reply != "hi!" {
		t.Errorf("reply = %q, want hi!", res.Reply)
	}
	if !errors.Is(res.UpdateErr, updateErr) {
		t.Errorf("UpdateErr = %v, want %v", res.UpdateErr, updateErr)
	}
	entries, _ := f.transcripts.ListAll(context.Background())
	if len(entries) != 1 || entries[0].SessionRef != res.SessionRef {
		t.Errorf("transcript should still be recorded against the session, got %+v", entries)
	}
}

func TestHandle_CancelledContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.svc.Handle(ctx, dm("abc", "hello")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestHandle_EmitsExchangeEvent(t *testing.T) {
	f := newFixture(strings.Repeat("x", 2500))
	em := &captureEmitter{got: make(chan struct{}, 1)}
	f.svc.events = em

	res, _ := f.svc.Handle(context.Background(), dm("abc", "hello"))
	select {
	case <-em.got:
	case <-time.After(time.Second):
		t.Fatal("no exchange event emitted")
	}
	em.mu.Lock()
	defer em.mu.Unlock()
	e := em.events[0]
	if e.SessionRef != res.SessionRef || e.Outcome != telemetry.OutcomeReplied || !e.NewSession || e.ReplyChunks != 2 {
		t.Errorf("event = %+v", e)
	}
}
