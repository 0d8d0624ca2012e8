// Package handler exposes the relay over HTTP: a JSON message endpoint, a websocket gateway for
// long-lived bridge connections, the transcript lookup and the liveness probe.
package handler

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dm-relay/internal/chat"
	"dm-relay/internal/relay"
	"dm-relay/internal/transcript/domain"
)

// Relay handles one inbound message.
type Relay interface {
	Handle(ctx context.Context, msg chat.Message) (relay.Result, error)
}

// TranscriptReader returns a user's own transcript.
type TranscriptReader interface {
	ForUser(ctx context.Context, rawID string) ([]*domain.Entry, error)
}

// TokenValidator validates bridge bearer tokens and returns the bridge name.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Handler serves the ingress routes.
type Handler struct {
	relay       Relay
	transcripts TranscriptReader
	auth        TokenValidator
	gateway     *Gateway
	// logOut receives request log lines.
	logOut io.Writer
}

// New returns a Handler. auth nil disables bearer auth and the transcript route.
func New(r Relay, transcripts TranscriptReader, auth TokenValidator) *Handler {
	return &Handler{relay: r, transcripts: transcripts, auth: auth, gateway: NewGateway(r), logOut: os.Stdout}
}

// Router builds the chi router with request logging and panic recovery.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(pathOnlyFormatter{
		next: &middleware.DefaultLogFormatter{Logger: log.New(h.logOut, "", log.LstdFlags)},
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)

	r.Route("/v1", func(v1 chi.Router) {
		if h.auth != nil {
			v1.Use(BearerAuth(h.auth))
		}
		v1.Post("/messages", h.handleMessage)
		v1.Get("/gateway", h.gateway.ServeHTTP)
		// raw-id lookups are only exposed to authenticated bridges
		if h.auth != nil && h.transcripts != nil {
			v1.Get("/transcripts", h.handleTranscripts)
		}
	})
	return r
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// pathOnlyFormatter logs requests without their query string, which may carry a raw user id.
type pathOnlyFormatter struct {
	next middleware.LogFormatter
}

func (f pathOnlyFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	stripped := r.WithContext(r.Context())
	u := *r.URL
	u.RawQuery = ""
	u.ForceQuery = false
	stripped.URL = &u
	stripped.RequestURI = u.RequestURI()
	return f.next.NewLogEntry(stripped)
}
