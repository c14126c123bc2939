package host_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/host"
	"github.com/pipelined/host/metric"
	"github.com/pipelined/host/mock"
	"github.com/pipelined/host/ring"
	"github.com/pipelined/host/signal"
)

func newChain(t *testing.T, engines ...host.Engine) *host.Chain {
	t.Helper()
	c, err := host.NewChain(engines, host.WithMaxBlockSize(bufferSize))
	require.NoError(t, err)
	return c
}

func TestCallbackMidi(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 2, EchoMIDI: true}
	midiIn := ring.New[host.MidiEvent](16)
	midiOut := ring.New[host.MidiEvent](16)
	cb, err := host.NewCallback(newChain(t, engine),
		host.WithMidiInput(midiIn),
		host.WithMidiOutput(host.SinkFunc(midiOut.Push)),
	)
	require.NoError(t, err)

	events := []host.MidiEvent{
		{Offset: 1000, Status: 0x90, Data1: 60, Data2: 100},
		{Offset: 0, Status: 0x90, Data1: 64, Data2: 100},
	}
	for _, e := range events {
		require.True(t, midiIn.Push(e))
	}
	out := signal.Alloc(2, 128)
	cb.Render(out, 128)

	calls := engine.Calls()
	require.Equal(t, 1, len(calls))
	// offsets are clamped to the block and sorted.
	assert.Equal(t, []host.MidiEvent{
		{Offset: 0, Status: 0x90, Data1: 64, Data2: 100},
		{Offset: 127, Status: 0x90, Data1: 60, Data2: 100},
	}, calls[0].Midi)
	assert.True(t, midiIn.Empty())

	dst := make([]host.MidiEvent, 4)
	n := midiOut.PopAll(dst)
	assert.Equal(t, 2, n)
	assert.Equal(t, calls[0].Midi, dst[:n])
	assert.Equal(t, int64(0), cb.Errors())
}

func TestCallbackAutomation(t *testing.T) {
	engine := &mock.Engine{Inputs: 1, Outputs: 1, NumParameters: 1, GainParam: true}
	automation := ring.New[host.ChainParamChange](16)
	cb, err := host.NewCallback(newChain(t, engine),
		host.WithAutomation(automation),
		host.WithInput(func(in [][]float32, frames int) {
			for i := 0; i < frames; i++ {
				in[0][i] = 1
			}
		}),
	)
	require.NoError(t, err)

	require.True(t, automation.Push(host.ChainParamChange{Offset: 64, Stage: 0, Index: 0, Value: 1}))
	require.True(t, automation.Push(host.ChainParamChange{Offset: 0, Stage: 0, Index: 0, Value: 0.5}))
	out := signal.Alloc(1, 128)
	cb.Render(out, 128)

	assert.Equal(t, float32(1), engine.Param(0))
	assert.Equal(t, 2, len(engine.Calls()))
	for i, v := range out[0] {
		if i < 64 {
			assert.Equal(t, float32(0.5), v, "frame %d", i)
		} else {
			assert.Equal(t, float32(1), v, "frame %d", i)
		}
	}
}

func TestCallbackAutomationLate(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 1, Value: 1, NumParameters: 1, GainParam: true}
	automation := ring.New[host.ChainParamChange](16)
	cb, err := host.NewCallback(newChain(t, engine), host.WithAutomation(automation))
	require.NoError(t, err)

	require.True(t, automation.Push(host.ChainParamChange{Offset: 600, Stage: 0, Index: 0, Value: 0.7}))
	out := signal.Alloc(1, bufferSize)
	cb.Render(out, bufferSize)

	// applied on the last frame instead of being dropped.
	assert.Equal(t, float32(0.7), engine.Param(0))
	assert.Equal(t, 0, automation.Len())
	calls := engine.Calls()
	require.Equal(t, 2, len(calls))
	assert.Equal(t, bufferSize-1, calls[0].Frames)
	assert.Equal(t, 1, calls[1].Frames)
	assert.Equal(t, float32(0.7), out[0][bufferSize-1])
	assert.Equal(t, int64(0), cb.Errors())
}

func TestCallbackSinkOnly(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 1}
	cb, err := host.NewCallback(newChain(t, engine),
		host.WithMidiOutput(host.SinkFunc(func(host.MidiEvent) bool { return true })),
	)
	require.NoError(t, err)

	cb.Render(signal.Alloc(1, 64), 64)
	calls := engine.Calls()
	require.Equal(t, 1, len(calls))
	// plugins may generate MIDI without input.
	assert.True(t, calls[0].MIDI)
	assert.Nil(t, calls[0].Midi)
}

func TestCallbackPlain(t *testing.T) {
	engine := &mock.Engine{Inputs: 2, Outputs: 2}
	cb, err := host.NewCallback(newChain(t, engine))
	require.NoError(t, err)

	out := signal.Alloc(2, 64)
	for ch := range out {
		for i := range out[ch] {
			out[ch][i] = 3
		}
	}
	cb.Render(out, 64)
	// no input means silence.
	assert.Equal(t, signal.Alloc(2, 64), out)
	calls := engine.Calls()
	require.Equal(t, 1, len(calls))
	assert.Nil(t, calls[0].Midi)
	assert.False(t, calls[0].MIDI)
}

func TestCallbackWideOutput(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 1, Value: 1}
	cb, err := host.NewCallback(newChain(t, engine))
	require.NoError(t, err)

	out := signal.Alloc(host.DefaultMaxChannels+1, 64)
	for ch := range out {
		for i := range out[ch] {
			out[ch][i] = 3
		}
	}
	cb.Render(out, 64)
	assert.Equal(t, int64(0), cb.Errors())
	assert.Equal(t, float32(1), out[host.DefaultMaxChannels-1][63])
	assert.Equal(t, make([]float32, 64), out[host.DefaultMaxChannels])
}

func TestCallbackTruncate(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 1, Value: 1}
	cb, err := host.NewCallback(newChain(t, engine))
	require.NoError(t, err)

	out := signal.Alloc(1, 2*bufferSize)
	cb.Render(out, 2*bufferSize)
	calls := engine.Calls()
	require.Equal(t, 1, len(calls))
	assert.Equal(t, bufferSize, calls[0].Frames)
	for i, v := range out[0] {
		if i < bufferSize {
			assert.Equal(t, float32(1), v, "frame %d", i)
		} else {
			assert.Equal(t, float32(0), v, "frame %d", i)
		}
	}
}

func TestCallbackErrors(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 1, Value: 1, ErrorOnCall: errors.New("test error")}
	cb, err := host.NewCallback(newChain(t, engine), host.WithMetric())
	require.NoError(t, err)

	out := signal.Alloc(1, 64)
	out[0][0] = 1
	cb.Render(out, 64)
	cb.Render(out, 64)
	assert.Equal(t, int64(2), cb.Errors())
	assert.Equal(t, signal.Alloc(1, 64), out)

	values := metric.Get(cb)
	assert.Equal(t, "2", values[metric.BlockCounter])
	assert.Equal(t, "128", values[metric.SampleCounter])
	assert.Equal(t, "2", values[metric.ErrorCounter])
}

func TestCallbackDropped(t *testing.T) {
	engine := &mock.Engine{Inputs: 0, Outputs: 1, EchoMIDI: true}
	midiIn := ring.New[host.MidiEvent](16)
	cb, err := host.NewCallback(newChain(t, engine),
		host.WithMidiInput(midiIn),
		host.WithMidiOutput(host.SinkFunc(func(host.MidiEvent) bool { return false })),
	)
	require.NoError(t, err)

	midiIn.Push(host.MidiEvent{Status: 0x90})
	midiIn.Push(host.MidiEvent{Status: 0x80})
	cb.Render(signal.Alloc(1, 64), 64)
	assert.Equal(t, int64(2), cb.Dropped())
}

func TestNewCallbackFail(t *testing.T) {
	_, err := host.NewCallback(nil)
	assert.Equal(t, host.ErrEmptyChain, err)
}
