// Package sse streams kalk domain events to HTTP clients as Server-Sent Events.
package sse

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/felixgeelhaar/kalk/pkg/domain/events"
	"github.com/goccy/go-json"
)

// Handler fans dispatched events out to every connected client. Register it
// on the dispatcher with Registration.
type Handler struct {
	mu      sync.RWMutex
	clients map[chan events.DomainEvent]struct{}
}

func NewHandler() *Handler {
	return &Handler{clients: make(map[chan events.DomainEvent]struct{})}
}

// Registration subscribes the handler to every event type.
func (h *Handler) Registration() events.HandlerRegistration {
	return events.HandlerRegistration{
		Name:       "SSEHandler",
		Handler:    h.broadcast,
		EventTypes: []string{"*"},
	}
}

func (h *Handler) broadcast(_ context.Context, event events.DomainEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- event:
		default:
			// slow client
		}
	}
	return nil
}

// Clients returns the number of open streams.
func (h *Handler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP streams events until the client disconnects. The query
// parameters types (comma separated) and project narrow the stream.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	typeFilter := make(map[string]bool)
	if types := r.URL.Query().Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			typeFilter[strings.TrimSpace(t)] = true
		}
	}
	project := r.URL.Query().Get("project")

	// Subscribe before the headers go out.
	ch := make(chan events.DomainEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			if len(typeFilter) > 0 && !typeFilter[event.EventType()] {
				continue
			}
			if project != "" && (event.AggregateType() != events.AggregateTypeProject || event.AggregateID() != project) {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\n", event.EventType())
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
