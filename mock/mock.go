// Package mock provides an in-memory host.Engine for tests and demos.
package mock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pipelined/host"
)

const defaultSampleRate = 44100

var (
	// ErrParamIndex is returned when parameter index is out of range.
	ErrParamIndex = errors.New("parameter index out of range")
	// ErrState is returned when state blob doesn't match parameters.
	ErrState = errors.New("invalid state")
)

// Engine mocks a host.Engine. It multiplies input by a gain and records
// every processing call. Configuration fields must be set before the
// engine is used.
type Engine struct {
	Inputs  int
	Outputs int
	Rate    float64
	Latency int
	Tail    float64
	// NumParameters is the number of exposed parameters.
	NumParameters int
	// GainParam makes parameter 0 the output gain. Otherwise gain is 1.
	GainParam bool
	// Value is written to output channels without matching input.
	Value float32
	// EchoMIDI copies incoming MIDI to MIDI output.
	EchoMIDI    bool
	ErrorOnCall error
	Hooks

	once   sync.Once
	values []atomic.Uint32

	mu    sync.Mutex
	calls []Call
}

// Hooks allows to mock engine control calls.
type Hooks struct {
	Resetted    bool
	NonRealtime bool

	ErrorOnReset       error
	ErrorOnNonRealtime error
}

// Call is a record of a single processing call.
type Call struct {
	Frames int
	Midi   []host.MidiEvent
	// MIDI is set when the call went through ProcessMIDI.
	MIDI bool
	// Params holds parameter values at the moment of the call.
	Params []float32
}

func (m *Engine) init() {
	m.once.Do(func() {
		m.values = make([]atomic.Uint32, m.NumParameters)
	})
}

// Process implements host.Engine.
func (m *Engine) Process(in, out [][]float32, n int) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	m.render(in, out, n)
	m.record(n, nil, false)
	return nil
}

// ProcessMIDI implements host.Engine.
func (m *Engine) ProcessMIDI(in, out [][]float32, n int, midiIn, midiOut []host.MidiEvent) (int, error) {
	if m.ErrorOnCall != nil {
		return 0, m.ErrorOnCall
	}
	m.render(in, out, n)
	m.record(n, midiIn, true)
	if !m.EchoMIDI {
		return 0, nil
	}
	return copy(midiOut, midiIn), nil
}

func (m *Engine) render(in, out [][]float32, n int) {
	gain := float32(1)
	if m.GainParam && m.NumParameters > 0 {
		gain = m.Param(0)
	}
	for ch := range out {
		if ch < len(in) {
			for i := 0; i < n; i++ {
				out[ch][i] = in[ch][i] * gain
			}
			continue
		}
		for i := 0; i < n; i++ {
			out[ch][i] = m.Value * gain
		}
	}
}

func (m *Engine) record(n int, midi []host.MidiEvent, viaMIDI bool) {
	c := Call{
		Frames: n,
		Params: m.Params(),
		MIDI:   viaMIDI,
	}
	if len(midi) > 0 {
		c.Midi = append([]host.MidiEvent(nil), midi...)
	}
	m.mu.Lock()
	m.calls = append(m.calls, c)
	m.mu.Unlock()
}

// Calls returns recorded processing calls.
func (m *Engine) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Automate implements host.Engine.
func (m *Engine) Automate(index int, value float32) bool {
	m.init()
	if index < 0 || index >= len(m.values) {
		return false
	}
	m.values[index].Store(math.Float32bits(value))
	return true
}

// NumInputs implements host.Engine.
func (m *Engine) NumInputs() int {
	return m.Inputs
}

// NumOutputs implements host.Engine.
func (m *Engine) NumOutputs() int {
	return m.Outputs
}

// SampleRate implements host.Engine.
func (m *Engine) SampleRate() float64 {
	if m.Rate == 0 {
		return defaultSampleRate
	}
	return m.Rate
}

// LatencySamples implements host.Engine.
func (m *Engine) LatencySamples() int {
	return m.Latency
}

// TailSeconds implements host.Engine.
func (m *Engine) TailSeconds() float64 {
	return m.Tail
}

// NumParams implements host.Engine.
func (m *Engine) NumParams() int {
	return m.NumParameters
}

// Param implements host.Engine. Out of range index returns 0.
func (m *Engine) Param(index int) float32 {
	m.init()
	if index < 0 || index >= len(m.values) {
		return 0
	}
	return math.Float32frombits(m.values[index].Load())
}

// Params returns all parameter values.
func (m *Engine) Params() []float32 {
	m.init()
	values := make([]float32, len(m.values))
	for i := range m.values {
		values[i] = math.Float32frombits(m.values[i].Load())
	}
	return values
}

// SetParam implements host.Engine.
func (m *Engine) SetParam(index int, value float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Automate(index, value) {
		return fmt.Errorf("%w: %d", ErrParamIndex, index)
	}
	return nil
}

// State implements host.Engine. State is parameter values encoded as
// little-endian float32.
func (m *Engine) State() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := m.Params()
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b, nil
}

// SetState implements host.Engine.
func (m *Engine) SetState(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if len(b) != 4*len(m.values) {
		return fmt.Errorf("%w: %d bytes for %d parameters", ErrState, len(b), len(m.values))
	}
	for i := range m.values {
		m.values[i].Store(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return nil
}

// Reset implements host.Engine. It clears recorded calls.
func (m *Engine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resetted = true
	if m.ErrorOnReset != nil {
		return m.ErrorOnReset
	}
	m.calls = nil
	return nil
}

// SetNonRealtime implements host.Engine.
func (m *Engine) SetNonRealtime(nonRealtime bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ErrorOnNonRealtime != nil {
		return m.ErrorOnNonRealtime
	}
	m.NonRealtime = nonRealtime
	return nil
}
