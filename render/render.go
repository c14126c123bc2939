// Package render processes a whole timeline through a chain offline.
package render

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-audio/audio"

	"github.com/pipelined/host"
	"github.com/pipelined/host/automation"
	"github.com/pipelined/host/log"
	"github.com/pipelined/host/signal"
)

const (
	// DefaultBlockSize is used when block size is not set.
	DefaultBlockSize = 512
	// DefaultTail is rendered when chain tail is unknown or unreasonably
	// long.
	DefaultTail = 2.0
	maxTail     = 30.0
	blockEvents = 1024
)

// MidiAt is a MIDI event at an absolute frame of the timeline.
type MidiAt struct {
	Frame  int
	Status uint8
	Data1  uint8
	Data2  uint8
}

// ParamAt is a parameter change at an absolute frame of the timeline.
type ParamAt struct {
	Frame int
	Stage int
	Index int
	Value float32
}

// Job describes a single offline render.
type Job struct {
	// Input is fed to the chain. It may be shorter than Length; missing
	// frames are silence.
	Input [][]float32
	// Length in frames. If zero, length of Input is used.
	Length  int
	Midi    []MidiAt
	Changes []ParamAt
	Lanes   []automation.Lane
	// Tail is number of seconds rendered after Length. Negative value
	// selects chain tail.
	Tail float64
}

// Result of a render.
type Result struct {
	// Audio is interleaved chain output.
	Audio *audio.Float32Buffer
	// Midi emitted by the first stage.
	Midi []MidiAt
	// Frames rendered including tail.
	Frames int
}

// Renderer renders jobs through a chain block by block. It switches the
// chain to non-realtime mode for the duration of a render. A renderer must
// not be used while the chain is driven by a callback.
type Renderer struct {
	chain     *host.Chain
	blockSize int
	log       log.Logger

	in, out signal.Float32
	inView  [][]float32
	outView [][]float32
	midi    []host.MidiEvent
	emitted []host.MidiEvent
	changes []host.ChainParamChange
}

// New returns a renderer. Block size must not exceed chain max block size.
func New(chain *host.Chain, blockSize int) (*Renderer, error) {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize > chain.MaxBlockSize() {
		return nil, fmt.Errorf("%w: %d exceeds %d", host.ErrBlockSize, blockSize, chain.MaxBlockSize())
	}
	return &Renderer{
		chain:     chain,
		blockSize: blockSize,
		log:       log.GetLogger().WithField("chain", chain.String()),
		in:        signal.Alloc(chain.NumInputs(), blockSize),
		out:       signal.Alloc(chain.NumOutputs(), blockSize),
		inView:    make([][]float32, 0, chain.NumInputs()),
		outView:   make([][]float32, 0, chain.NumOutputs()),
		midi:      make([]host.MidiEvent, 0, blockEvents),
		emitted:   make([]host.MidiEvent, blockEvents),
		changes:   make([]host.ChainParamChange, 0, blockEvents),
	}, nil
}

// TailFrames returns number of frames rendered after job length.
func (r *Renderer) TailFrames(tail float64) int {
	if tail < 0 {
		tail = r.chain.Tail()
		if tail <= 0 || tail > maxTail {
			tail = DefaultTail
		}
	}
	return signal.FramesOf(r.chain.SampleRate(), tail)
}

// Render processes the job. Context is checked between blocks.
func (r *Renderer) Render(ctx context.Context, job Job) (Result, error) {
	length := job.Length
	if length <= 0 {
		length = signal.Float32(job.Input).Size()
	}
	total := length + r.TailFrames(job.Tail)
	midi := sortedMidi(job.Midi)
	changes := sortedChanges(job.Changes, job.Lanes, r.blockSize)

	if err := r.chain.SetNonRealtime(true); err != nil {
		return Result{}, fmt.Errorf("set non-realtime: %w", err)
	}
	defer func() {
		if err := r.chain.SetNonRealtime(false); err != nil {
			r.log.Warn(fmt.Sprintf("set realtime: %v", err))
		}
	}()

	numChannels := r.chain.NumOutputs()
	result := Result{
		Audio: &audio.Float32Buffer{
			Format: &audio.Format{
				NumChannels: numChannels,
				SampleRate:  int(r.chain.SampleRate()),
			},
			Data:           make([]float32, total*numChannels),
			SourceBitDepth: 32,
		},
		Frames: total,
	}

	var mi, ci int
	for pos := 0; pos < total; pos += r.blockSize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		n := r.blockSize
		if left := total - pos; left < n {
			n = left
		}
		in := r.input(job.Input, pos, n)
		out := r.out.View(r.outView, 0, n)

		r.midi = r.midi[:0]
		for ; mi < len(midi) && midi[mi].Frame < pos+n; mi++ {
			e := midi[mi]
			if e.Frame < pos || len(r.midi) == cap(r.midi) {
				continue
			}
			r.midi = append(r.midi, host.MidiEvent{
				Offset: uint32(e.Frame - pos),
				Status: e.Status,
				Data1:  e.Data1,
				Data2:  e.Data2,
			})
		}
		r.changes = r.changes[:0]
		for ; ci < len(changes) && changes[ci].Frame < pos+n; ci++ {
			pc := changes[ci]
			if pc.Frame < pos || len(r.changes) == cap(r.changes) {
				continue
			}
			r.changes = append(r.changes, host.ChainParamChange{
				Offset: uint32(pc.Frame - pos),
				Stage:  uint32(pc.Stage),
				Index:  uint32(pc.Index),
				Value:  pc.Value,
			})
		}

		emitted, err := r.chain.ProcessAuto(in, out, n, r.midi, r.emitted, r.changes)
		if err != nil {
			return Result{}, fmt.Errorf("render frames %d-%d: %w", pos, pos+n, err)
		}
		signal.Float32(out).Interleave(result.Audio.Data[pos*numChannels : (pos+n)*numChannels])
		for _, e := range r.emitted[:emitted] {
			result.Midi = append(result.Midi, MidiAt{
				Frame:  pos + int(e.Offset),
				Status: e.Status,
				Data1:  e.Data1,
				Data2:  e.Data2,
			})
		}
	}
	r.log.Debug(fmt.Sprintf("rendered %d frames", total))
	return result, nil
}

// input copies frames [pos, pos+n) of src into input buffer. Missing
// frames and channels are silence.
func (r *Renderer) input(src [][]float32, pos, n int) [][]float32 {
	in := r.in.View(r.inView, 0, n)
	for ch := range in {
		copied := 0
		if ch < len(src) && pos < len(src[ch]) {
			copied = copy(in[ch], src[ch][pos:])
		}
		for i := copied; i < n; i++ {
			in[ch][i] = 0
		}
	}
	return in
}

// sortedMidi returns a copy of events sorted by frame. Events at the same
// frame keep their order.
func sortedMidi(events []MidiAt) []MidiAt {
	sorted := make([]MidiAt, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Frame < sorted[j].Frame
	})
	return sorted
}

// sortedChanges merges explicit changes with expanded lanes and sorts them
// by frame. Explicit changes come first at the same frame.
func sortedChanges(changes []ParamAt, lanes []automation.Lane, blockSize int) []ParamAt {
	sorted := make([]ParamAt, len(changes), len(changes)+len(lanes))
	copy(sorted, changes)
	for _, lane := range lanes {
		for _, k := range lane.Expand(blockSize) {
			sorted = append(sorted, ParamAt{
				Frame: k.Frame,
				Stage: lane.Stage,
				Index: lane.Index,
				Value: k.Value,
			})
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Frame < sorted[j].Frame
	})
	return sorted
}
