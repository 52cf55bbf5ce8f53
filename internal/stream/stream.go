package stream

import (
	"context"
	"sync"
	"time"
)

// TemperatureAlert describes an out-of-range reading for the monitoring feed.
type TemperatureAlert struct {
	EstoqueID      string    `json:"estoqueId"`
	Estoque        string    `json:"estoque"`
	Sala           string    `json:"sala"`
	Temperatura    float64   `json:"temperatura"`
	MinTemp        float64   `json:"minTemp"`
	MaxTemp        float64   `json:"maxTemp"`
	ProfissionalID string    `json:"profissionalId"`
	Timestamp      time.Time `json:"timestamp"`
}

// Stream fan-outs temperature alerts to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan TemperatureAlert
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan TemperatureAlert)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// alerts. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan TemperatureAlert {
	ch := make(chan TemperatureAlert, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the alert to all subscribers.
func (s *Stream) Publish(alert TemperatureAlert) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- alert:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
