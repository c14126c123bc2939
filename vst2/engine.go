//go:build vst2

package vst2

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/dudk/vst2"

	"github.com/pipelined/host"
)

// ErrNotSupported is returned for features the binding doesn't expose.
var ErrNotSupported = errors.New("not supported by vst2 engine")

// Config of a plugin instance. The binding doesn't report channel
// counts, latency or tail, so they are configured.
type Config struct {
	SampleRate   float64
	MaxBlockSize int
	Inputs       int
	Outputs      int
	Latency      int
	Tail         float64
	// NumParams is number of host-side parameters. Values are kept by the
	// engine and can be read back, they are not sent to the plugin.
	NumParams int
	// Notifier receives parameter edits and metadata changes reported by
	// the plugin. Nil discards them.
	Notifier *host.Notifier
}

// Engine adapts a VST2 plugin to host.Engine. MIDI is not forwarded to
// the plugin: ProcessMIDI renders audio and emits no events.
type Engine struct {
	lib    *vst2.Library
	plugin *vst2.Plugin
	cfg    Config

	// float64 scratch the binding processes.
	buf   [][]float64
	block [][]float64

	params    []atomic.Uint32
	transport *transport
	offline   atomic.Bool
	mu        sync.Mutex
}

// Open loads plugin library from path and starts the plugin.
func Open(path string, cfg Config) (*Engine, error) {
	if cfg.MaxBlockSize <= 0 {
		cfg.MaxBlockSize = host.DefaultMaxBlockSize
	}
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("open %v: invalid sample rate %v", path, cfg.SampleRate)
	}
	lib, err := vst2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %v: %w", path, err)
	}
	plugin, err := lib.Open()
	if err != nil {
		lib.Close()
		return nil, fmt.Errorf("open plugin %v: %w", path, err)
	}
	numChannels := cfg.Outputs
	if cfg.Inputs > numChannels {
		numChannels = cfg.Inputs
	}
	e := &Engine{
		lib:       lib,
		plugin:    plugin,
		cfg:       cfg,
		buf:       make([][]float64, numChannels),
		block:     make([][]float64, numChannels),
		params:    make([]atomic.Uint32, cfg.NumParams),
		transport: newTransport(cfg.SampleRate),
	}
	for i := range e.buf {
		e.buf[i] = make([]float64, cfg.MaxBlockSize)
	}

	plugin.SetCallback(e.callback)
	plugin.SetBufferSize(cfg.MaxBlockSize)
	plugin.SetSampleRate(int(cfg.SampleRate))
	plugin.SetSpeakerArrangement(numChannels)
	plugin.Resume()
	return e, nil
}

// callback answers plugin requests. It may be called from the audio
// thread, so it doesn't log or block.
func (e *Engine) callback(plugin *vst2.Plugin, opcode vst2.MasterOpcode, index int64, value int64, ptr unsafe.Pointer, opt float64) int {
	switch opcode {
	case vst2.AudioMasterVersion:
		return hostVersion
	case vst2.AudioMasterIdle:
		plugin.Dispatch(vst2.EffEditIdle, 0, 0, nil, 0)
	case vst2.AudioMasterGetSampleRate:
		return int(e.cfg.SampleRate)
	case vst2.AudioMasterGetBlockSize:
		return e.cfg.MaxBlockSize
	case vst2.AudioMasterGetCurrentProcessLevel:
		return processLevel(e.offline.Load())
	case vst2.AudioMasterGetTime:
		samples, ppq, bar := e.transport.at()
		return int(plugin.SetTimeInfo(
			int(e.cfg.SampleRate),
			samples,
			float32(e.transport.tempo),
			vst2.TimeSignature{NotesPerBar: e.transport.notesPerBar, NoteValue: defaultNoteValue},
			time.Now().UnixNano(),
			ppq,
			bar,
		))
	case vst2.AudioMasterAutomate:
		if index >= 0 && index < int64(len(e.params)) {
			e.params[index].Store(math.Float32bits(float32(opt)))
		}
		e.notify(requestAutomate, index, opt)
	case vst2.AudioMasterBeginEdit:
		e.notify(requestBeginEdit, index, opt)
	case vst2.AudioMasterEndEdit:
		e.notify(requestEndEdit, index, opt)
	case vst2.AudioMasterIOChanged:
		e.notify(requestIOChanged, index, opt)
	case vst2.AudioMasterUpdateDisplay:
		e.notify(requestUpdateDisplay, index, opt)
	}
	return 0
}

// notify posts request to the notifier. Full queue drops it.
func (e *Engine) notify(r request, index int64, value float64) {
	if e.cfg.Notifier == nil {
		return
	}
	if n, ok := notification(r, index, value); ok {
		e.cfg.Notifier.Post(n)
	}
}

// Process implements host.Engine.
func (e *Engine) Process(in, out [][]float32, n int) error {
	if n > e.cfg.MaxBlockSize {
		return host.ErrBlockSize
	}
	block := e.block
	for ch := range e.buf {
		block[ch] = e.buf[ch][:n]
		if ch < len(in) && ch < e.cfg.Inputs {
			for i := 0; i < n; i++ {
				block[ch][i] = float64(in[ch][i])
			}
			continue
		}
		for i := range block[ch] {
			block[ch][i] = 0
		}
	}
	result := e.plugin.Process(block)
	for ch := range out {
		var src []float64
		if ch < len(result) && ch < e.cfg.Outputs {
			src = result[ch]
		}
		for i := 0; i < n; i++ {
			if i < len(src) {
				out[ch][i] = float32(src[i])
			} else {
				out[ch][i] = 0
			}
		}
	}
	e.transport.advance(n)
	return nil
}

// ProcessMIDI implements host.Engine.
func (e *Engine) ProcessMIDI(in, out [][]float32, n int, _, _ []host.MidiEvent) (int, error) {
	return 0, e.Process(in, out, n)
}

// Automate implements host.Engine.
func (e *Engine) Automate(index int, value float32) bool {
	if index < 0 || index >= len(e.params) {
		return false
	}
	e.params[index].Store(math.Float32bits(value))
	return true
}

// NumInputs implements host.Engine.
func (e *Engine) NumInputs() int { return e.cfg.Inputs }

// NumOutputs implements host.Engine.
func (e *Engine) NumOutputs() int { return e.cfg.Outputs }

// SampleRate implements host.Engine.
func (e *Engine) SampleRate() float64 { return e.cfg.SampleRate }

// LatencySamples implements host.Engine.
func (e *Engine) LatencySamples() int { return e.cfg.Latency }

// TailSeconds implements host.Engine.
func (e *Engine) TailSeconds() float64 { return e.cfg.Tail }

// NumParams implements host.Engine.
func (e *Engine) NumParams() int { return len(e.params) }

// Param implements host.Engine.
func (e *Engine) Param(index int) float32 {
	if index < 0 || index >= len(e.params) {
		return 0
	}
	return math.Float32frombits(e.params[index].Load())
}

// SetParam implements host.Engine.
func (e *Engine) SetParam(index int, value float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.Automate(index, value) {
		return fmt.Errorf("parameter %d out of range", index)
	}
	return nil
}

// State implements host.Engine.
func (e *Engine) State() ([]byte, error) {
	return nil, ErrNotSupported
}

// SetState implements host.Engine.
func (e *Engine) SetState([]byte) error {
	return ErrNotSupported
}

// Reset implements host.Engine. Plugin is suspended and resumed and
// transport is rewound.
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plugin.Suspend()
	e.transport.reset()
	e.plugin.Resume()
	return nil
}

// SetNonRealtime implements host.Engine. The binding has no offline
// mode switch; the mode is reported when the plugin asks for the
// process level.
func (e *Engine) SetNonRealtime(offline bool) error {
	e.offline.Store(offline)
	return nil
}

// Close suspends and closes the plugin and unloads its library. It must
// not be called while the engine is processing.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plugin.Suspend()
	err := e.plugin.Close()
	e.lib.Close()
	if err != nil {
		return fmt.Errorf("close plugin: %w", err)
	}
	return nil
}
