// Package runtime holds the process-local presence state: which
// participants are connected right now, and through which connections.
// Nothing here is persisted; the registry mirrors live transport handles
// and is rebuilt empty on restart.
package runtime

import (
	"context"
	"log/slog"
	"sync"

	"chat-core/contract"
	"chat-core/domain/event"
)

type sinkSet map[contract.EventSink]struct{}

type Registry struct {
	mu sync.RWMutex
	// participant id -> live connections; entries are removed when empty,
	// so presence in the map means online.
	byParticipant map[string]sinkSet
	// reverse binding, letting Unbind work from the connection alone.
	bySink map[contract.EventSink]string

	log *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		byParticipant: make(map[string]sinkSet),
		bySink:        make(map[contract.EventSink]string),
		log:           log,
	}
}

// Bind attaches a connection to a participant. A participant may hold any
// number of connections at once.
func (r *Registry) Bind(participantID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bySink[sink] = participantID
	if _, ok := r.byParticipant[participantID]; !ok {
		r.byParticipant[participantID] = make(sinkSet)
	}
	r.byParticipant[participantID][sink] = struct{}{}
}

// Unbind detaches a connection regardless of who it was bound to. It
// reports the former binding and whether it was the participant's last
// connection; an unknown sink yields ("", false).
func (r *Registry) Unbind(sink contract.EventSink) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participantID, ok := r.bySink[sink]
	if !ok {
		return "", false
	}
	delete(r.bySink, sink)

	sinks := r.byParticipant[participantID]
	delete(sinks, sink)
	if len(sinks) == 0 {
		delete(r.byParticipant, participantID)
		return participantID, true
	}
	return participantID, false
}

func (r *Registry) SinksFor(participantID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := r.byParticipant[participantID]
	if len(sinks) == 0 {
		return nil
	}
	out := make([]contract.EventSink, 0, len(sinks))
	for sink := range sinks {
		out = append(out, sink)
	}
	return out
}

func (r *Registry) IsOnline(participantID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byParticipant[participantID]) > 0
}

func (r *Registry) OnlineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byParticipant))
	for id := range r.byParticipant {
		ids = append(ids, id)
	}
	return ids
}

// Publish delivers an event to every connection of every recipient, or to
// every bound connection when the recipient list is empty. Delivery is
// best-effort: a sink that fails is skipped, never retried or queued.
func (r *Registry) Publish(ctx context.Context, e event.Event) {
	for _, sink := range r.targets(e.Recipients()) {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Debug("Dropping undeliverable event",
				"event", e.EventName(), "error", err)
		}
	}
}

func (r *Registry) targets(recipients []string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(recipients) == 0 {
		out := make([]contract.EventSink, 0, len(r.bySink))
		for sink := range r.bySink {
			out = append(out, sink)
		}
		return out
	}

	seen := make(sinkSet)
	var out []contract.EventSink
	for _, id := range recipients {
		for sink := range r.byParticipant[id] {
			if _, dup := seen[sink]; dup {
				continue
			}
			seen[sink] = struct{}{}
			out = append(out, sink)
		}
	}
	return out
}
