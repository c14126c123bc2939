package host

// MidiEvent is a short MIDI message placed at a frame within one block.
type MidiEvent struct {
	Offset uint32 // frame within the block, 0..n-1
	Status uint8  // e.g. 0x90 note on, 0x80 note off
	Data1  uint8
	Data2  uint8
}

// ParamChange sets a normalized parameter value at a frame within one
// block. Slices of changes must be sorted by Offset.
type ParamChange struct {
	Offset uint32
	Index  uint32
	Value  float32 // 0..1
}

// ChainParamChange is a ParamChange addressed to one stage of a chain.
type ChainParamChange struct {
	Offset uint32
	Stage  uint32
	Index  uint32
	Value  float32
}

// offset implements timed.
func (pc ParamChange) offset() uint32 { return pc.Offset }

// offset implements timed.
func (pc ChainParamChange) offset() uint32 { return pc.Offset }

// Engine hosts one audio processing unit. It's implemented by plugin
// format adapters and mocks; host never creates or closes engines.
//
// Process, ProcessMIDI and Automate are the audio path: they are called
// from exactly one goroutine and must not block. The rest are control
// accessors guarded by the engine's own lock and may be called from any
// goroutine.
type Engine interface {
	// Process renders n frames. Nil in means silence, nil out means
	// discard. Missing input channels are treated as silence.
	Process(in, out [][]float32, n int) error
	// ProcessMIDI renders n frames with MIDI input and writes up to
	// len(midiOut) emitted events with block-local offsets. It returns
	// the number of events written.
	ProcessMIDI(in, out [][]float32, n int, midiIn, midiOut []MidiEvent) (int, error)
	// Automate sets a normalized parameter value from the audio thread
	// without taking locks. It returns false if index is out of range.
	Automate(index int, value float32) bool

	NumInputs() int
	NumOutputs() int
	SampleRate() float64
	LatencySamples() int
	TailSeconds() float64

	NumParams() int
	Param(index int) float32
	SetParam(index int, value float32) error
	State() ([]byte, error)
	SetState([]byte) error

	Reset() error
	SetNonRealtime(bool) error
}

// Target is anything the audio callback can drive: a single engine or
// a chain.
type Target interface {
	Process(in, out [][]float32, n int) error
	ProcessMIDI(in, out [][]float32, n int, midiIn, midiOut []MidiEvent) (int, error)
}

// MidiSink receives MIDI emitted by plugins. Send is called from the audio
// thread and must not block; it returns false when the event is dropped.
type MidiSink interface {
	Send(MidiEvent) bool
}

// SinkFunc adapts a function to MidiSink.
type SinkFunc func(MidiEvent) bool

// Send calls f(e).
func (f SinkFunc) Send(e MidiEvent) bool {
	return f(e)
}

// clampUnit limits v to the normalized range.
func clampUnit(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
