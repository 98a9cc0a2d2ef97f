package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/websocket"
	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/mira/internal/platform/errors"
	"github.com/louisbranch/mira/internal/platform/i18n"
	"github.com/louisbranch/mira/internal/services/controlplane/broadcast"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
	"github.com/louisbranch/mira/internal/services/gesture"
)

const (
	maxCommandBytes   = 64 * 1024
	defaultEventsPage = 100
	maxEventsPage     = 500
)

// CommandSubmitter is the arbiter's write path.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd command.Command) (event.Event, error)
}

// EventLister pages through the raw log.
type EventLister interface {
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
}

// Deps are the collaborators the HTTP surface serves from.
type Deps struct {
	Arbiter CommandSubmitter
	States  *broadcast.Broadcaster
	Feed    *broadcast.FeedHub[gesture.FeedItem]
	Events  EventLister
}

type commandResponse struct {
	EventID string          `json:"event_id"`
	Seq     uint64          `json:"seq"`
	Status  event.Type      `json:"status"`
	Payload json.RawMessage `json:"payload"`
	Message string          `json:"message,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
	Event     *commandResponse `json:"event,omitempty"`
}

type eventsResponse struct {
	Events       []event.Event `json:"events"`
	NextAfterSeq uint64        `json:"next_after_seq"`
}

// NewHandler builds the HTTP and websocket routes.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, seq, err := deps.States.State()
		if err != nil {
			http.Error(w, "state unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "healthy",
			"service":     "controlplane",
			"seq":         seq,
			"subscribers": len(deps.States.Stats()),
		})
	})
	mux.HandleFunc("POST /command", func(w http.ResponseWriter, r *http.Request) {
		handleCommand(w, r, deps.Arbiter)
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		data, seq, err := deps.States.State()
		if err != nil {
			log.Printf("controlplane: read state: %v", err)
			http.Error(w, "state unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-Mira-Seq", strconv.FormatUint(seq, 10))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		handleEvents(w, r, deps.Events)
	})

	mux.Handle("GET /ws/state", websocket.Handler(func(conn *websocket.Conn) {
		serveStateStream(conn, deps.States)
	}))
	mux.Handle("GET /ws/vision", websocket.Handler(func(conn *websocket.Conn) {
		serveFeedStream(conn, deps.Feed)
	}))
	mux.Handle("GET /ws/vision/ingest", websocket.Handler(func(conn *websocket.Conn) {
		serveFeedIngest(conn, deps.Feed)
	}))
	return mux
}

func handleCommand(w http.ResponseWriter, r *http.Request, arbiter CommandSubmitter) {
	tag := i18n.ResolveTag(r)
	var cmd command.Command
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBytes))
	if err := dec.Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{
			Code:    string(apperrors.CodeInvalidArgument),
			Message: i18n.Sprintf(tag, i18n.KeyMalformedCommand),
		})
		return
	}

	evt, err := arbiter.Submit(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		code := apperrors.CodeOf(err)
		body := errorBody{
			Code:      string(code),
			Message:   i18n.Sprintf(tag, errorMessageKey(code)),
			Retryable: code.Retryable(),
		}
		if evt.ID != "" {
			resp := newCommandResponse(tag, cmd, evt)
			body.Event = &resp
		}
		if code == apperrors.CodeUnknown {
			log.Printf("controlplane: submit %s: %v", cmd.Action, err)
		}
		if body.Retryable {
			w.Header().Set("Retry-After", "1")
		}
		writeError(w, code.HTTPStatus(), body)
		return
	}
	writeJSON(w, http.StatusOK, newCommandResponse(tag, cmd, evt))
}

func errorMessageKey(code apperrors.Code) string {
	switch code {
	case apperrors.CodeArbiterBusy, apperrors.CodeArbiterStopped:
		return i18n.KeyArbiterBusy
	default:
		return i18n.KeyPersistenceFailure
	}
}

func newCommandResponse(tag language.Tag, cmd command.Command, evt event.Event) commandResponse {
	resp := commandResponse{
		EventID: evt.ID,
		Seq:     evt.Seq,
		Status:  evt.Type,
		Payload: evt.PayloadJSON,
	}
	if evt.Type == event.TypeRejected {
		if rejection, err := evt.Rejection(); err == nil {
			resp.Message = rejectionMessage(tag, cmd, rejection)
		}
	}
	return resp
}

// rejectionMessage renders the user-facing text for a rejection reason.
func rejectionMessage(tag language.Tag, cmd command.Command, rejection event.Rejection) string {
	switch rejection.Reason {
	case command.ReasonUnknownAction:
		return i18n.Sprintf(tag, i18n.KeyUnknownAction, rejection.Action)
	case command.ReasonInvalidPayload:
		return i18n.Sprintf(tag, i18n.KeyInvalidPayload, rejection.Action)
	case command.ReasonInvalidSource:
		return i18n.Sprintf(tag, i18n.KeyInvalidSource, string(cmd.Source))
	default:
		return i18n.Sprintf(tag, rejection.Reason)
	}
}

func handleEvents(w http.ResponseWriter, r *http.Request, events EventLister) {
	tag := i18n.ResolveTag(r)
	query := r.URL.Query()
	afterSeq, err := parseUint(query.Get("after_seq"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Code: string(apperrors.CodeInvalidArgument), Message: "after_seq must be a non-negative integer"})
		return
	}
	limit, err := parseUint(query.Get("limit"), defaultEventsPage)
	if err != nil || limit == 0 {
		writeError(w, http.StatusBadRequest, errorBody{Code: string(apperrors.CodeInvalidArgument), Message: "limit must be a positive integer"})
		return
	}
	limit = min(limit, maxEventsPage)

	var page []event.Event
	if expr := strings.TrimSpace(query.Get("filter")); expr != "" {
		filtered, ok := events.(storage.FilteredEventLister)
		if !ok {
			writeError(w, http.StatusBadRequest, errorBody{Code: string(apperrors.CodeInvalidArgument), Message: "filtering is not supported by this store"})
			return
		}
		page, err = filtered.ListEventsFiltered(r.Context(), afterSeq, int(limit), expr)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorBody{Code: string(apperrors.CodeInvalidArgument), Message: err.Error()})
			return
		}
	} else {
		page, err = events.ListEvents(r.Context(), afterSeq, int(limit))
		if err != nil {
			log.Printf("controlplane: list events: %v", err)
			writeError(w, http.StatusInternalServerError, errorBody{Code: string(apperrors.CodeUnknown), Message: i18n.Sprintf(tag, i18n.KeyPersistenceFailure)})
			return
		}
	}

	next := afterSeq
	if len(page) > 0 {
		next = page[len(page)-1].Seq
	}
	if page == nil {
		page = []event.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: page, NextAfterSeq: next})
}

func parseUint(value string, fallback uint64) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseUint(value, 10, 64)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("controlplane: write response: %v", err)
	}
}
