// Package broker defines the durable queue contract the task manager
// drains, generalizing the in-process IngestRequestChan listener pattern
// to a contract a real broker (SQS, NATS, a DB-backed queue) could also
// satisfy.
package broker

import (
	"context"

	"github.com/mitchellh/mapstructure"

	"varda/internal/domain"
)

// Payload is the message published when a Task row is created: enough for
// a worker to look up everything else it needs (the Task itself, plus the
// sample/data-source/annotation the task acts on). The Task row's Target
// and DataSourceID columns hold the same ids, so a worker can rebuild a
// Payload from the row when no message was delivered.
type Payload struct {
	TaskID       string
	Kind         domain.TaskKind
	SampleID     string
	DataSourceID string
	AnnotationID string
}

// Queue delivers raw broker messages — a map[string]interface{}, the shape
// a real broker hands back over the wire — that DecodePayload turns into a
// typed Payload. Publish takes a typed Payload; Subscribe delivers the raw
// shape rather than Payload, and callers decode each message with
// DecodePayload.
type Queue interface {
	Publish(ctx context.Context, payload Payload) error
	// Subscribe returns a channel of raw messages. The channel closes when
	// ctx is done.
	Subscribe(ctx context.Context) (<-chan map[string]interface{}, error)
}

// DecodePayload decodes a raw broker message into a Payload, the
// mapstructure-based decode a task manager worker performs on every
// message it drains before dispatching it.
func DecodePayload(raw map[string]interface{}) (Payload, error) {
	var p Payload
	if err := mapstructure.Decode(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func (p Payload) toRaw() map[string]interface{} {
	return map[string]interface{}{
		"TaskID":       p.TaskID,
		"Kind":         p.Kind,
		"SampleID":     p.SampleID,
		"DataSourceID": p.DataSourceID,
		"AnnotationID": p.AnnotationID,
	}
}

// ChanQueue is an in-process Queue backed by a buffered channel, the
// single-node equivalent of the real broker VARDA_BROKER_DSN configures.
type ChanQueue struct {
	ch chan map[string]interface{}
}

// NewChanQueue creates a ChanQueue with the given channel depth.
func NewChanQueue(depth int) *ChanQueue {
	if depth <= 0 {
		depth = 64
	}
	return &ChanQueue{ch: make(chan map[string]interface{}, depth)}
}

func (q *ChanQueue) Publish(ctx context.Context, payload Payload) error {
	select {
	case q.ch <- payload.toRaw():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChanQueue) Subscribe(ctx context.Context) (<-chan map[string]interface{}, error) {
	out := make(chan map[string]interface{})
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-q.ch:
				if !ok {
					return
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
