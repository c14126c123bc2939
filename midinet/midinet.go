// Package midinet bridges MIDI between NATS subjects and a session.
//
// Payload of every message is a single short MIDI message as it appears
// on the wire: one to three bytes, status first.
package midinet

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pipelined/host"
	"github.com/pipelined/host/log"
	"github.com/pipelined/host/metric"
	"github.com/pipelined/host/midiport"
	"github.com/pipelined/host/ring"
)

const publishEvents = 256

// Conn is a subset of *nats.Conn used by the bridge.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
}

// Connect dials NATS server with the client name set.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return nc, nil
}

// Bridge receives MIDI on a subject and publishes plugin MIDI output on
// subject + ".out". It doesn't own the connection.
type Bridge struct {
	conn    Conn
	subject string
	log     log.Logger
	sub     *nats.Subscription

	invalid atomic.Int64
	dropped metric.CountFunc
	errors  metric.CountFunc
}

// NewBridge returns a bridge for subject.
func NewBridge(conn Conn, subject string, l log.Logger) *Bridge {
	b := &Bridge{
		conn:    conn,
		subject: subject,
		log:     l.WithField("subject", subject),
	}
	b.dropped = metric.Dropped(b)
	b.errors = metric.Errors(b)
	return b
}

// OutSubject returns subject plugin MIDI is published on.
func (b *Bridge) OutSubject() string {
	return b.subject + ".out"
}

// Subscribe delivers received events to push. NATS calls handlers of one
// subscription from a single goroutine, so push has exactly one producer.
// Invalid payloads are counted and dropped.
func (b *Bridge) Subscribe(push func(host.MidiEvent) bool) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		e, ok := midiport.Decode(msg.Data)
		if !ok {
			b.invalid.Add(1)
			b.errors(1)
			return
		}
		if !push(e) {
			b.dropped(1)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", b.subject, err)
	}
	b.sub = sub
	b.log.Debug("subscribed")
	return nil
}

// Unsubscribe stops delivery of received events.
func (b *Bridge) Unsubscribe() error {
	if b.sub == nil {
		return nil
	}
	sub := b.sub
	b.sub = nil
	return sub.Unsubscribe()
}

// Invalid returns number of dropped invalid payloads.
func (b *Bridge) Invalid() int64 {
	return b.invalid.Load()
}

// Publish drains src every interval and publishes every event until ctx
// is done. Publish is the single consumer of src.
func (b *Bridge) Publish(ctx context.Context, src *ring.Buffer[host.MidiEvent], interval time.Duration) error {
	events := make([]host.MidiEvent, publishEvents)
	subject := b.OutSubject()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n := src.PopAll(events)
				for _, e := range events[:n] {
					if err := b.conn.Publish(subject, midiport.Encode(e)); err != nil {
						b.errors(1)
						b.log.Warn(fmt.Sprintf("publish: %v", err))
					}
				}
				if n < len(events) {
					break
				}
			}
		}
	}
}
