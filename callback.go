package host

import (
	"sync/atomic"

	"github.com/pipelined/host/metric"
	"github.com/pipelined/host/ring"
	"github.com/pipelined/host/signal"
)

// callbackEvents is the number of MIDI events and parameter changes a
// single callback drains from its queues. The rest stays queued for the
// next callback.
const callbackEvents = 256

// InputFunc fills chain input for one callback. It runs on the audio
// thread and must not block.
type InputFunc func(in [][]float32, frames int)

// CallbackOption configures a callback.
type CallbackOption func(*Callback)

// WithInput sets the source of chain input. Without it the chain receives
// silence.
func WithInput(fn InputFunc) CallbackOption {
	return func(c *Callback) {
		c.input = fn
	}
}

// WithMidiInput sets the queue MIDI is drained from on every callback.
func WithMidiInput(q *ring.Buffer[MidiEvent]) CallbackOption {
	return func(c *Callback) {
		c.midiIn = q
	}
}

// WithMidiOutput sets the sink for MIDI emitted by the first stage.
func WithMidiOutput(sink MidiSink) CallbackOption {
	return func(c *Callback) {
		c.midiOut = sink
	}
}

// WithAutomation sets the queue parameter changes are drained from on
// every callback. This is how control goroutines change parameters while
// audio is running.
func WithAutomation(q *ring.Buffer[ChainParamChange]) CallbackOption {
	return func(c *Callback) {
		c.automation = q
	}
}

// WithMetric enables expvar counters for the callback.
func WithMetric() CallbackOption {
	return func(c *Callback) {
		c.metered = true
	}
}

// Callback is the audio thread entry point. Render is called by an audio
// backend once per hardware buffer; it never blocks, allocates or returns
// errors. Engine failures are counted and the failing block is silenced.
type Callback struct {
	chain      *Chain
	input      InputFunc
	midiIn     *ring.Buffer[MidiEvent]
	midiOut    MidiSink
	automation *ring.Buffer[ChainParamChange]

	in      signal.Float32
	inView  [][]float32
	outView [][]float32
	midi    [callbackEvents]MidiEvent
	emitted [callbackEvents]MidiEvent
	changes [callbackEvents]ChainParamChange

	metered      bool
	measure      metric.MeasureFunc
	countErrors  metric.CountFunc
	countDropped metric.CountFunc
	errors       atomic.Int64
	dropped      atomic.Int64
}

// NewCallback returns a callback driving chain. Input buffers are
// allocated for the chain's maximum block size.
func NewCallback(chain *Chain, options ...CallbackOption) (*Callback, error) {
	if chain == nil || chain.Len() == 0 {
		return nil, ErrEmptyChain
	}
	c := &Callback{
		chain: chain,
	}
	for _, option := range options {
		option(c)
	}
	c.in = signal.Alloc(chain.NumInputs(), chain.MaxBlockSize())
	c.inView = make([][]float32, 0, chain.NumInputs())
	c.outView = make([][]float32, 0, chain.MaxChannels())
	if c.metered {
		c.measure = metric.Meter(c, chain.SampleRate())()
		c.countErrors = metric.Errors(c)
		c.countDropped = metric.Dropped(c)
	}
	return c, nil
}

// Render processes one hardware buffer. Frames beyond the chain's maximum
// block size or beyond out channel length are not rendered and are
// zeroed, so are channels beyond the chain's maximum channels.
func (c *Callback) Render(out [][]float32, frames int) {
	if limit := cap(c.outView); len(out) > limit {
		signal.Float32(out[limit:]).Clear(0, frames)
		out = out[:limit]
	}
	n := frames
	if limit := c.chain.MaxBlockSize(); n > limit {
		n = limit
	}
	for _, ch := range out {
		if len(ch) < n {
			n = len(ch)
		}
	}
	if n <= 0 {
		signal.Float32(out).Clear(0, frames)
		return
	}

	in := c.in.View(c.inView, 0, n)
	if c.input != nil {
		c.input(in, n)
	} else {
		c.in.Clear(0, n)
	}
	dst := signal.Float32(out).View(c.outView, 0, n)

	var midi []MidiEvent
	if c.midiIn != nil {
		k := c.midiIn.PopAll(c.midi[:])
		midi = sortMidi(c.midi[:k], n)
	}
	var changes []ChainParamChange
	if c.automation != nil {
		k := c.automation.PopAll(c.changes[:])
		changes = sortChanges(c.changes[:k], n)
	}

	var (
		emitted int
		err     error
	)
	switch {
	case len(changes) > 0:
		emitted, err = c.chain.ProcessAuto(in, dst, n, midi, c.emitted[:], changes)
	case len(midi) > 0 || c.midiOut != nil:
		emitted, err = c.chain.ProcessMIDI(in, dst, n, midi, c.emitted[:])
	default:
		err = c.chain.Process(in, dst, n)
	}
	if err != nil {
		c.errors.Add(1)
		if c.countErrors != nil {
			c.countErrors(1)
		}
		signal.Float32(dst).Clear(0, n)
	}

	if c.midiOut != nil {
		for i := 0; i < emitted; i++ {
			if !c.midiOut.Send(c.emitted[i]) {
				c.dropped.Add(1)
				if c.countDropped != nil {
					c.countDropped(1)
				}
			}
		}
	}

	signal.Float32(out).Clear(n, frames)
	if c.measure != nil {
		c.measure(int64(n))
	}
}

// Errors returns number of callbacks that failed to render.
func (c *Callback) Errors() int64 {
	return c.errors.Load()
}

// Dropped returns number of emitted MIDI events the sink refused.
func (c *Callback) Dropped() int64 {
	return c.dropped.Load()
}

// sortMidi clamps offsets to the block and sorts events in place, keeping
// arrival order for equal offsets.
func sortMidi(events []MidiEvent, n int) []MidiEvent {
	last := uint32(n - 1)
	for i := range events {
		if events[i].Offset > last {
			events[i].Offset = last
		}
		for j := i; j > 0 && events[j].Offset < events[j-1].Offset; j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
	return events
}

// sortChanges clamps offsets to the block and sorts changes in place,
// keeping arrival order for equal offsets. Changes queued for a later
// frame than the block holds apply on its last frame.
func sortChanges(changes []ChainParamChange, n int) []ChainParamChange {
	last := uint32(n - 1)
	for i := range changes {
		if changes[i].Offset > last {
			changes[i].Offset = last
		}
		for j := i; j > 0 && changes[j].Offset < changes[j-1].Offset; j-- {
			changes[j], changes[j-1] = changes[j-1], changes[j]
		}
	}
	return changes
}
