// Package midiport connects hardware and virtual MIDI ports to a session.
//
// Ports is an explicitly constructed handle over a gomidi driver. There is
// no package level state: callers create Ports, pass it around and close
// it when done.
package midiport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/pipelined/host"
	"github.com/pipelined/host/log"
	"github.com/pipelined/host/metric"
	"github.com/pipelined/host/ring"
)

var (
	// ErrPortIndex is returned when port with requested index doesn't exist.
	ErrPortIndex = errors.New("port index out of range")
	// ErrVirtual is returned when driver can't create virtual ports.
	ErrVirtual = errors.New("driver doesn't support virtual ports")
)

const forwardEvents = 256

// virtualDriver creates ports other applications can connect to. The
// rtmidi driver implements it.
type virtualDriver interface {
	OpenVirtualIn(name string) (drivers.In, error)
	OpenVirtualOut(name string) (drivers.Out, error)
}

// Ports lists and connects MIDI ports of a single driver.
type Ports struct {
	drv     drivers.Driver
	log     log.Logger
	dropped metric.CountFunc
}

// New returns ports handle for driver. Driver is closed with Ports.
func New(drv drivers.Driver) *Ports {
	p := &Ports{
		drv: drv,
	}
	p.log = log.GetLogger().WithField("driver", drv.String())
	p.dropped = metric.Dropped(p)
	return p
}

// Inputs returns names of input ports.
func (p *Ports) Inputs() ([]string, error) {
	ins, err := p.drv.Ins()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ins))
	for i, in := range ins {
		names[i] = in.String()
	}
	return names, nil
}

// Outputs returns names of output ports.
func (p *Ports) Outputs() ([]string, error) {
	outs, err := p.drv.Outs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names, nil
}

// ListenTo delivers short messages received on input port to push. Push
// is called from the driver goroutine; it's the single producer of the
// session MIDI queue. Events are placed at the start of the next block.
// Messages that are not short channel or system messages are dropped.
func (p *Ports) ListenTo(index int, push func(host.MidiEvent) bool) (stop func(), err error) {
	ins, err := p.drv.Ins()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(ins) {
		return nil, fmt.Errorf("%w: input %d", ErrPortIndex, index)
	}
	return p.listen(ins[index], push)
}

// ListenToVirtual creates a virtual input port with name and listens to it
// the same way ListenTo does.
func (p *Ports) ListenToVirtual(name string, push func(host.MidiEvent) bool) (stop func(), err error) {
	drv, ok := p.drv.(virtualDriver)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrVirtual, p.drv)
	}
	in, err := drv.OpenVirtualIn(name)
	if err != nil {
		return nil, fmt.Errorf("open virtual input %v: %w", name, err)
	}
	return p.listen(in, push)
}

func (p *Ports) listen(in drivers.In, push func(host.MidiEvent) bool) (stop func(), err error) {
	stop, err = midi.ListenTo(in, func(msg midi.Message, _ int32) {
		e, ok := Decode(msg)
		if !ok || !push(e) {
			p.dropped(1)
		}
	}, midi.HandleError(func(err error) {
		p.log.Warn(fmt.Sprintf("listen %v: %v", in, err))
	}))
	if err != nil {
		return nil, fmt.Errorf("listen %v: %w", in, err)
	}
	p.log.Debug(fmt.Sprintf("listening to %v", in))
	return stop, nil
}

// Forward sends events from src to output port until ctx is done. The
// queue is drained every interval; Forward is the single consumer of src.
func (p *Ports) Forward(ctx context.Context, index int, src *ring.Buffer[host.MidiEvent], interval time.Duration) error {
	outs, err := p.drv.Outs()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(outs) {
		return fmt.Errorf("%w: output %d", ErrPortIndex, index)
	}
	return p.forward(ctx, outs[index], src, interval)
}

// ForwardVirtual creates a virtual output port with name and forwards src
// to it until ctx is done.
func (p *Ports) ForwardVirtual(ctx context.Context, name string, src *ring.Buffer[host.MidiEvent], interval time.Duration) error {
	drv, ok := p.drv.(virtualDriver)
	if !ok {
		return fmt.Errorf("%w: %v", ErrVirtual, p.drv)
	}
	out, err := drv.OpenVirtualOut(name)
	if err != nil {
		return fmt.Errorf("open virtual output %v: %w", name, err)
	}
	return p.forward(ctx, out, src, interval)
}

func (p *Ports) forward(ctx context.Context, out drivers.Out, src *ring.Buffer[host.MidiEvent], interval time.Duration) error {
	send, err := midi.SendTo(out)
	if err != nil {
		return fmt.Errorf("open %v: %w", out, err)
	}

	events := make([]host.MidiEvent, forwardEvents)
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
					if err := send(Encode(e)); err != nil {
						p.dropped(1)
						p.log.Warn(fmt.Sprintf("send %v: %v", out, err))
					}
				}
				if n < len(events) {
					break
				}
			}
		}
	}
}

// Close closes the driver and all its ports.
func (p *Ports) Close() error {
	return p.drv.Close()
}

// Encode returns wire bytes of event. Length depends on status.
func Encode(e host.MidiEvent) midi.Message {
	switch length(e.Status) {
	case 1:
		return midi.Message{e.Status}
	case 2:
		return midi.Message{e.Status, e.Data1}
	}
	return midi.Message{e.Status, e.Data1, e.Data2}
}

// Decode returns event of a short message with zero offset. Missing data
// bytes are zero. Empty, running status and messages longer than three
// bytes are rejected.
func Decode(msg []byte) (host.MidiEvent, bool) {
	if len(msg) == 0 || len(msg) > 3 || msg[0] < 0x80 || msg[0] == 0xF0 {
		return host.MidiEvent{}, false
	}
	e := host.MidiEvent{Status: msg[0]}
	if len(msg) > 1 {
		e.Data1 = msg[1]
	}
	if len(msg) > 2 {
		e.Data2 = msg[2]
	}
	return e, true
}

// length returns number of bytes in a message with status.
func length(status uint8) int {
	switch {
	case status >= 0xF8, status == 0xF6:
		return 1
	case status == 0xF1, status == 0xF3:
		return 2
	case status >= 0xF0:
		return 3
	}
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	}
	return 3
}
