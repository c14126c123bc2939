package host

import "github.com/pipelined/host/signal"

const (
	// DefaultMaxChannels bounds the number of channels a scheduler can
	// slice into sub-blocks.
	DefaultMaxChannels = 64
	// DefaultMidiCapacity bounds the number of MIDI events delivered to a
	// single sub-block.
	DefaultMidiCapacity = 256
)

// timed is implemented by both kinds of parameter changes.
type timed interface {
	ParamChange | ChainParamChange
	offset() uint32
}

// stepper applies parameter changes and renders sub-blocks for schedule.
type stepper[C timed] interface {
	apply(C)
	render(start, end int, midiIn, midiOut []MidiEvent) (int, error)
}

// Scheduler splits a block into sub-blocks at parameter change offsets and
// invokes an engine once per sub-block. All scratch space is allocated by
// NewScheduler, so Run does not allocate. A scheduler must be used from one
// goroutine.
type Scheduler struct {
	midi    []MidiEvent
	inView  [][]float32
	outView [][]float32
	step    engineStep
}

// NewScheduler returns a scheduler able to slice up to maxChannels
// channels and to deliver up to midiCapacity events per sub-block. Wider
// buffers are rejected by Run and extra events are dropped. Non-positive
// values select the defaults.
func NewScheduler(maxChannels, midiCapacity int) *Scheduler {
	if maxChannels <= 0 {
		maxChannels = DefaultMaxChannels
	}
	if midiCapacity <= 0 {
		midiCapacity = DefaultMidiCapacity
	}
	return &Scheduler{
		midi:    make([]MidiEvent, 0, midiCapacity),
		inView:  make([][]float32, 0, maxChannels),
		outView: make([][]float32, 0, maxChannels),
	}
}

// Run processes n frames of in into out with engine e. Changes and midiIn
// must be sorted by offset. Changes at an offset are applied before the
// sub-block starting there; MIDI exactly at a boundary is delivered to the
// later sub-block. Changes with an out of range index are ignored, changes
// at or beyond n are dropped, MIDI offsets at or beyond n are clamped to
// n-1.
//
// Emitted MIDI is written to midiOut with block offsets; Run returns the
// number of events written. Without changes the engine is called exactly
// once with the caller's buffers.
func (s *Scheduler) Run(e Engine, in, out [][]float32, n int, midiIn []MidiEvent, changes []ParamChange, midiOut []MidiEvent) (int, error) {
	if n <= 0 || !fits(in, n) || !fits(out, n) {
		return 0, ErrBlockSize
	}
	if len(in) > s.MaxChannels() || len(out) > s.MaxChannels() {
		return 0, ErrChannels
	}
	s.step = engineStep{
		Scheduler: s,
		engine:    e,
		in:        in,
		out:       out,
		n:         n,
		midi:      len(midiIn) > 0 || len(midiOut) > 0,
	}
	written, err := schedule[ParamChange](&s.step, s.midi, n, midiIn, changes, midiOut)
	s.step = engineStep{}
	return written, err
}

// MaxChannels returns the widest buffer Run accepts.
func (s *Scheduler) MaxChannels() int {
	return cap(s.inView)
}

// engineStep renders sub-blocks of a single engine.
type engineStep struct {
	*Scheduler
	engine  Engine
	in, out [][]float32
	n       int
	midi    bool
}

func (st *engineStep) apply(pc ParamChange) {
	st.engine.Automate(int(pc.Index), clampUnit(pc.Value))
}

func (st *engineStep) render(start, end int, midiIn, midiOut []MidiEvent) (int, error) {
	in, out := st.in, st.out
	if start != 0 || end != st.n {
		in = signal.Float32(st.in).View(st.inView, start, end)
		out = signal.Float32(st.out).View(st.outView, start, end)
	}
	if !st.midi {
		return 0, st.engine.Process(in, out, end-start)
	}
	return st.engine.ProcessMIDI(in, out, end-start, midiIn, midiOut)
}

// schedule is the sub-block loop shared by engines and chains.
func schedule[C timed](st stepper[C], scratch []MidiEvent, n int, midiIn []MidiEvent, changes []C, midiOut []MidiEvent) (int, error) {
	var (
		current int
		pi, mi  int
		written int
		last    = uint32(n - 1)
	)
	for current < n {
		// changes at or before current apply to this sub-block.
		for pi < len(changes) && int(changes[pi].offset()) <= current {
			st.apply(changes[pi])
			pi++
		}

		end := n
		if pi < len(changes) {
			if next := int(changes[pi].offset()); next > current && next < n {
				end = next
			}
		}

		local := scratch[:0]
		for mi < len(midiIn) {
			e := midiIn[mi]
			if e.Offset > last {
				e.Offset = last
			}
			if int(e.Offset) >= end {
				break
			}
			if int(e.Offset) >= current && len(local) < cap(local) {
				e.Offset -= uint32(current)
				local = append(local, e)
			}
			mi++
		}

		var out []MidiEvent
		if written < len(midiOut) {
			out = midiOut[written:]
		}
		k, err := st.render(current, end, local, out)
		if k > len(out) {
			k = len(out)
		}
		for i := written; i < written+k; i++ {
			midiOut[i].Offset += uint32(current)
		}
		written += k
		if err != nil {
			return written, err
		}
		current = end
	}
	return written, nil
}

// fits reports whether every channel holds at least n frames.
func fits(buf [][]float32, n int) bool {
	for _, ch := range buf {
		if len(ch) < n {
			return false
		}
	}
	return true
}
