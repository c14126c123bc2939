package host

import (
	"fmt"
	"math"

	"github.com/rs/xid"

	"github.com/pipelined/host/signal"
)

const (
	// DefaultMaxBlockSize is the largest block a chain accepts unless
	// configured otherwise.
	DefaultMaxBlockSize = 8192
	// sampleRateEpsilon is the tolerated difference between stage rates.
	sampleRateEpsilon = 0.1
)

// Chain routes audio through an ordered list of engines. The first engine
// receives the chain input and exchanges MIDI with the caller; each
// following engine receives the previous engine's output. Chain does not
// own the engines: closing it never closes them, and they must outlive it.
//
// Process, ProcessMIDI and ProcessAuto are the audio path and must be
// called from one goroutine. They don't allocate.
type Chain struct {
	id           string
	name         string
	stages       []stage
	sampleRate   float64
	maxBlockSize int
	midiCapacity int
	closed       bool

	// buffers[i] connects stage i and i+1. It has
	// max(stage[i].outputs, stage[i+1].inputs) channels.
	buffers   []signal.Float32
	writeView [][][]float32 // stage i outputs into buffers[i]
	readView  [][][]float32 // stage i+1 inputs from buffers[i]

	scheduler *Scheduler
	step      chainStep
}

type stage struct {
	Engine
	inputs  int
	outputs int
}

// ChainOption configures a chain.
type ChainOption func(*Chain)

// WithMaxBlockSize sets the largest block the chain accepts. Intermediate
// buffers are allocated for this size.
func WithMaxBlockSize(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.maxBlockSize = n
		}
	}
}

// WithMidiCapacity sets how many MIDI events can be delivered to a single
// sub-block during ProcessAuto.
func WithMidiCapacity(n int) ChainOption {
	return func(c *Chain) {
		if n > 0 {
			c.midiCapacity = n
		}
	}
}

// WithName sets the chain name used in logs.
func WithName(name string) ChainOption {
	return func(c *Chain) {
		c.name = name
	}
}

// NewChain validates engines and pre-allocates inter-stage buffers. It
// fails if the list is empty, contains a nil engine or stages disagree on
// sample rate. Nothing is retained on failure.
func NewChain(engines []Engine, options ...ChainOption) (*Chain, error) {
	if len(engines) == 0 {
		return nil, ErrEmptyChain
	}
	for i, e := range engines {
		if e == nil {
			return nil, fmt.Errorf("stage %d: %w", i, ErrNilEngine)
		}
	}
	sampleRate := engines[0].SampleRate()
	for i := 1; i < len(engines); i++ {
		if rate := engines[i].SampleRate(); math.Abs(rate-sampleRate) > sampleRateEpsilon {
			return nil, fmt.Errorf("%w: stage 0 runs at %.0f Hz, stage %d runs at %.0f Hz", ErrSampleRateMismatch, sampleRate, i, rate)
		}
	}

	c := &Chain{
		id:           xid.New().String(),
		sampleRate:   sampleRate,
		maxBlockSize: DefaultMaxBlockSize,
		midiCapacity: DefaultMidiCapacity,
	}
	for _, option := range options {
		option(c)
	}

	c.stages = make([]stage, len(engines))
	for i, e := range engines {
		c.stages[i] = stage{
			Engine:  e,
			inputs:  e.NumInputs(),
			outputs: e.NumOutputs(),
		}
	}
	maxChannels := DefaultMaxChannels
	if n := c.stages[0].inputs; n > maxChannels {
		maxChannels = n
	}
	if n := c.stages[len(engines)-1].outputs; n > maxChannels {
		maxChannels = n
	}
	c.scheduler = NewScheduler(maxChannels, c.midiCapacity)

	c.buffers = make([]signal.Float32, len(engines)-1)
	c.writeView = make([][][]float32, len(engines)-1)
	c.readView = make([][][]float32, len(engines)-1)
	for i := range c.buffers {
		out, in := c.stages[i].outputs, c.stages[i+1].inputs
		numChannels := out
		if in > numChannels {
			numChannels = in
		}
		c.buffers[i] = signal.Alloc(numChannels, c.maxBlockSize)
		c.writeView[i] = make([][]float32, out)
		c.readView[i] = make([][]float32, in)
	}
	return c, nil
}

// ID returns unique chain identity.
func (c *Chain) ID() string {
	return c.id
}

// MaxChannels returns the widest input or output buffer the chain
// accepts. It is at least DefaultMaxChannels.
func (c *Chain) MaxChannels() int {
	return c.scheduler.MaxChannels()
}

// String returns chain name and ID.
func (c *Chain) String() string {
	if c.name == "" {
		return c.id
	}
	return fmt.Sprintf("%v %v", c.name, c.id)
}

// Process renders n frames through all stages without MIDI.
func (c *Chain) Process(in, out [][]float32, n int) error {
	if err := c.check(in, out, n); err != nil {
		return err
	}
	_, err := c.render(in, out, 0, n, n, false, nil, nil)
	return err
}

// ProcessMIDI renders n frames through all stages. MIDI is delivered to
// and collected from the first stage only; downstream stages never see
// MIDI. It returns the number of events written to midiOut.
func (c *Chain) ProcessMIDI(in, out [][]float32, n int, midiIn, midiOut []MidiEvent) (int, error) {
	if err := c.check(in, out, n); err != nil {
		return 0, err
	}
	return c.render(in, out, 0, n, n, true, midiIn, midiOut)
}

// ProcessAuto renders n frames with sample-accurate parameter changes.
// The block is split at change offsets exactly as Scheduler.Run does, and
// each change is routed to its stage before the sub-block starting at its
// offset. Changes addressed to a missing stage are ignored.
func (c *Chain) ProcessAuto(in, out [][]float32, n int, midiIn, midiOut []MidiEvent, changes []ChainParamChange) (int, error) {
	if err := c.check(in, out, n); err != nil {
		return 0, err
	}
	c.step = chainStep{chain: c, in: in, out: out, n: n}
	written, err := schedule[ChainParamChange](&c.step, c.scheduler.midi, n, midiIn, changes, midiOut)
	c.step = chainStep{}
	return written, err
}

func (c *Chain) check(in, out [][]float32, n int) error {
	if c.closed {
		return ErrClosed
	}
	if n <= 0 || n > c.maxBlockSize || !fits(in, n) || !fits(out, n) {
		return ErrBlockSize
	}
	if len(in) > c.MaxChannels() || len(out) > c.MaxChannels() {
		return ErrChannels
	}
	return nil
}

// render processes frames [start, end) of a block of n frames.
func (c *Chain) render(in, out [][]float32, start, end, n int, midi bool, midiIn, midiOut []MidiEvent) (int, error) {
	frames := end - start
	if start != 0 || end != n {
		in = signal.Float32(in).View(c.scheduler.inView, start, end)
		out = signal.Float32(out).View(c.scheduler.outView, start, end)
	}

	if len(c.stages) == 1 {
		return c.first(in, out, frames, midi, midiIn, midiOut)
	}

	written, err := c.first(in, c.output(0, frames), frames, midi, midiIn, midiOut)
	if err != nil {
		return written, &StageError{Stage: 0, Err: err}
	}
	last := len(c.stages) - 1
	for i := 1; i < last; i++ {
		if err := c.stages[i].Process(c.input(i, frames), c.output(i, frames), frames); err != nil {
			return written, &StageError{Stage: i, Err: err}
		}
	}
	if err := c.stages[last].Process(c.input(last, frames), out, frames); err != nil {
		return written, &StageError{Stage: last, Err: err}
	}
	return written, nil
}

func (c *Chain) first(in, out [][]float32, frames int, midi bool, midiIn, midiOut []MidiEvent) (int, error) {
	if !midi {
		return 0, c.stages[0].Process(in, out, frames)
	}
	return c.stages[0].ProcessMIDI(in, out, frames, midiIn, midiOut)
}

// output returns views of buffers[i] for stage i to write frames into.
func (c *Chain) output(i, frames int) [][]float32 {
	view := c.writeView[i]
	for ch := range view {
		view[ch] = c.buffers[i][ch][:frames]
	}
	return view
}

// input returns views of buffers[i-1] for stage i to read frames from.
// Channels stage i-1 doesn't produce are zeroed.
func (c *Chain) input(i, frames int) [][]float32 {
	buf := c.buffers[i-1]
	buf.ClearChannels(c.stages[i-1].outputs, c.stages[i].inputs, 0, frames)
	view := c.readView[i-1]
	for ch := range view {
		view[ch] = buf[ch][:frames]
	}
	return view
}

// chainStep renders sub-blocks of a chain for schedule.
type chainStep struct {
	chain   *Chain
	in, out [][]float32
	n       int
}

func (st *chainStep) apply(pc ChainParamChange) {
	if int(pc.Stage) >= len(st.chain.stages) {
		return
	}
	st.chain.stages[pc.Stage].Automate(int(pc.Index), clampUnit(pc.Value))
}

func (st *chainStep) render(start, end int, midiIn, midiOut []MidiEvent) (int, error) {
	return st.chain.render(st.in, st.out, start, end, st.n, true, midiIn, midiOut)
}

// Latency returns the sum of stage latencies in samples.
func (c *Chain) Latency() int {
	latency := 0
	for _, s := range c.stages {
		latency += s.LatencySamples()
	}
	return latency
}

// Tail returns the longest stage tail in seconds. Tails overlap in time,
// so they are not summed.
func (c *Chain) Tail() float64 {
	var tail float64
	for _, s := range c.stages {
		if t := s.TailSeconds(); t > tail {
			tail = t
		}
	}
	return tail
}

// NumInputs returns number of input channels of the first stage.
func (c *Chain) NumInputs() int {
	if len(c.stages) == 0 {
		return 0
	}
	return c.stages[0].inputs
}

// NumOutputs returns number of output channels of the last stage.
func (c *Chain) NumOutputs() int {
	if len(c.stages) == 0 {
		return 0
	}
	return c.stages[len(c.stages)-1].outputs
}

// SampleRate returns the sample rate shared by all stages.
func (c *Chain) SampleRate() float64 {
	return c.sampleRate
}

// MaxBlockSize returns the largest block the chain accepts.
func (c *Chain) MaxBlockSize() int {
	return c.maxBlockSize
}

// Len returns number of stages.
func (c *Chain) Len() int {
	return len(c.stages)
}

// Stage returns the engine at position i or nil if i is out of range.
func (c *Chain) Stage(i int) Engine {
	if i < 0 || i >= len(c.stages) {
		return nil
	}
	return c.stages[i].Engine
}

// Reset resets every stage. All stages are reset even if some fail.
func (c *Chain) Reset() error {
	var errs stageErrors
	for i, s := range c.stages {
		if err := s.Reset(); err != nil {
			errs = append(errs, &StageError{Stage: i, Err: err})
		}
	}
	return errs.ret()
}

// SetNonRealtime switches every stage between realtime and offline mode.
func (c *Chain) SetNonRealtime(nonRealtime bool) error {
	var errs stageErrors
	for i, s := range c.stages {
		if err := s.SetNonRealtime(nonRealtime); err != nil {
			errs = append(errs, &StageError{Stage: i, Err: err})
		}
	}
	return errs.ret()
}

// Close releases buffers and references to engines. Engines are not
// closed. It must not be called while the chain is processing.
func (c *Chain) Close() error {
	c.closed = true
	c.stages = nil
	c.buffers = nil
	c.writeView = nil
	c.readView = nil
	return nil
}
