// Package relay handles one inbound direct message end to end: eligibility, session lookup,
// model call, session update and transcript entry.
package relay

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dm-relay/internal/chat"
	"dm-relay/internal/model"
	"dm-relay/internal/session"
	"dm-relay/internal/session/domain"
	"dm-relay/internal/telemetry"
	"dm-relay/internal/transcript"
)

// ReplyLookupFailed is sent when no session could be resolved for the sender.
const ReplyLookupFailed = "Oops! Something went wrong. Please try again later."

// InboundMessage is the message shape handed over by the transport.
type InboundMessage = chat.Message

// Sessions is the session store used by the relay.
type Sessions interface {
	GetOrCreate(ctx context.Context, rawID string) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session, userText, aiText string) error
}

// Transcripts is the transcript log used by the relay.
type Transcripts interface {
	Record(ctx context.Context, msg chat.Message, response *string, sessionRef string) transcript.RecordResult
}

// Result is the outcome of Handle.
type Result struct {
	// Handled is false when the message was not eligible; Reply is then empty.
	Handled bool
	Reply   string
	// SessionRef is the session id, or transcript.ErrorSessionRef when lookup failed.
	SessionRef string
	NewSession bool
	// UpdateErr is set when the reply was produced but the session could not be saved.
	UpdateErr error
}

// Service wires the relay steps together.
type Service struct {
	eligibility transcript.Eligibility
	sessions    Sessions
	transcripts Transcripts
	generator   model.Generator
	metrics     *telemetry.Metrics
	events      telemetry.EventEmitter
	tracer      trace.Tracer
	nowF        func() time.Time
}

// NewService returns a relay Service. eligibility nil means chat.Message.Direct; metrics and events may be nil.
func NewService(eligibility transcript.Eligibility, sessions Sessions, transcripts Transcripts, generator model.Generator, metrics *telemetry.Metrics, events telemetry.EventEmitter) *Service {
	return &Service{
		eligibility: eligibility,
		sessions:    sessions,
		transcripts: transcripts,
		generator:   generator,
		metrics:     metrics,
		events:      events,
		tracer:      otel.Tracer("dm-relay/relay"),
		nowF:        time.Now,
	}
}

// Handle processes msg and returns the reply to send. It errors only when ctx is already done;
// every other failure has a user-facing reply. Session save failures are reported in Result.UpdateErr.
func (s *Service) Handle(ctx context.Context, msg InboundMessage) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := s.nowF()
	ctx, span := s.tracer.Start(ctx, "relay.Handle")
	defer span.End()

	if !s.eligible(ctx, msg) {
		span.SetAttributes(attribute.String("relay.outcome", telemetry.OutcomeNotEligible))
		return Result{}, nil
	}

	sess, err := s.sessions.GetOrCreate(ctx, msg.SenderID)
	if err != nil {
		log.Printf("relay: session lookup failed: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session lookup failed")
		_ = s.transcripts.Record(ctx, msg, nil, transcript.ErrorSessionRef)
		res := Result{Handled: true, Reply: ReplyLookupFailed, SessionRef: transcript.ErrorSessionRef}
		s.emit(res, telemetry.OutcomeLookupFailed, 0, start)
		return res, nil
	}

	res := Result{Handled: true, SessionRef: sess.ID, NewSession: sess.New}
	span.SetAttributes(attribute.String("relay.session_ref", sess.ID), attribute.Bool("relay.new_session", sess.New))

	modelStart := s.nowF()
	res.Reply = s.generator.Generate(ctx, history(sess), msg.Content)
	modelLatency := s.nowF().Sub(modelStart)
	s.metrics.ModelLatency(ctx, modelLatency)

	outcome := telemetry.OutcomeReplied
	if err := s.sessions.Update(ctx, sess, msg.Content, res.Reply); err != nil {
		log.Printf("relay: session %s update failed: %v", sess.ID, err)
		span.RecordError(err)
		res.UpdateErr = err
		outcome = telemetry.OutcomeUpdateFailed
	}

	reply := res.Reply
	_ = s.transcripts.Record(ctx, msg, &reply, sess.ID)

	span.SetAttributes(attribute.String("relay.outcome", outcome))
	s.emit(res, outcome, modelLatency, start)
	return res, nil
}

func (s *Service) eligible(ctx context.Context, msg chat.Message) bool {
	if s.eligibility == nil {
		return msg.Direct()
	}
	return s.eligibility.Eligible(ctx, msg)
}

func (s *Service) emit(res Result, outcome string, modelLatency time.Duration, start time.Time) {
	now := s.nowF()
	telemetry.EmitAsync(s.events, &telemetry.ExchangeEvent{
		SessionRef:   res.SessionRef,
		Outcome:      outcome,
		NewSession:   res.NewSession,
		ReplyChunks:  len(Chunk(res.Reply, MaxChunkLen)),
		ModelLatency: modelLatency,
		Duration:     now.Sub(start),
		CreatedAt:    now.UTC(),
	})
}

func history(sess *domain.Session) []model.Turn {
	msgs := session.History(sess)
	out := make([]model.Turn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.Turn{Role: string(m.Role), Content: m.Content})
	}
	return out
}
