package prompt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	commonws "ride-engagement/internal/common/websocket"
	"ride-engagement/internal/engagement/model"

	"go.uber.org/zap"
)

// Resolver presents confirmation prompts to the counterparty. The prompt is
// pushed over the WebSocket hub and Prompt blocks until Answer delivers the
// selection or ctx is cancelled. A dismissed prompt simply never answers;
// the confirmation session's own timeout owns that case.
type Resolver struct {
	mu      sync.Mutex
	pending map[model.ZoneKind]chan bool
	hub     *commonws.Hub
	log     *zap.Logger
}

func NewResolver(hub *commonws.Hub, log *zap.Logger) *Resolver {
	return &Resolver{
		pending: make(map[model.ZoneKind]chan bool),
		hub:     hub,
		log:     log,
	}
}

type promptMessage struct {
	Type      string    `json:"type"`
	ZoneID    string    `json:"zone_id"`
	ZoneKind  string    `json:"zone_kind"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *Resolver) Prompt(ctx context.Context, zone model.Zone) (bool, error) {
	ch := make(chan bool, 1)

	r.mu.Lock()
	r.pending[zone.Kind] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.pending[zone.Kind] == ch {
			delete(r.pending, zone.Kind)
		}
		r.mu.Unlock()
	}()

	if r.hub != nil {
		question := "Has the passenger been picked up?"
		if zone.Kind == model.ZoneDestination {
			question = "Has the passenger been dropped off?"
		}
		body, _ := json.Marshal(promptMessage{
			Type:      "confirmation_prompt",
			ZoneID:    zone.ID,
			ZoneKind:  string(zone.Kind),
			Question:  question,
			Options:   []string{"confirmed", "not yet"},
			Timestamp: time.Now().UTC(),
		})
		r.hub.Broadcast(body)
	}

	select {
	case confirmed := <-ch:
		return confirmed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Answer resolves the pending prompt for a zone kind. Returns false when no
// prompt is waiting (already timed out or never shown).
func (r *Resolver) Answer(kind model.ZoneKind, confirmed bool) bool {
	r.mu.Lock()
	ch, ok := r.pending[kind]
	if ok {
		delete(r.pending, kind)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	ch <- confirmed
	r.log.Info("confirmation prompt answered",
		zap.String("zone_kind", string(kind)), zap.Bool("confirmed", confirmed))
	return true
}
