package render_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/host"
	"github.com/pipelined/host/automation"
	"github.com/pipelined/host/mock"
	"github.com/pipelined/host/render"
)

const blockSize = 256

func newChain(t *testing.T, engines ...host.Engine) *host.Chain {
	t.Helper()
	c, err := host.NewChain(engines, host.WithMaxBlockSize(blockSize))
	require.NoError(t, err)
	return c
}

func TestRenderMidiAndChanges(t *testing.T) {
	synth := &mock.Engine{Outputs: 2, Value: 0.5, NumParameters: 1, GainParam: true, EchoMIDI: true}
	r, err := render.New(newChain(t, synth), blockSize)
	require.NoError(t, err)

	result, err := r.Render(context.Background(), render.Job{
		Length: 1000,
		Midi: []render.MidiAt{
			{Frame: 700, Status: 0x80, Data1: 60},
			{Frame: 300, Status: 0x90, Data1: 60, Data2: 100},
			{Frame: 5000, Status: 0x90, Data1: 61, Data2: 100},
		},
		Changes: []render.ParamAt{
			{Frame: 600, Stage: 0, Index: 0, Value: 0.5},
			{Frame: 0, Stage: 0, Index: 0, Value: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, result.Frames)
	assert.Equal(t, 2, result.Audio.Format.NumChannels)
	assert.Equal(t, 44100, result.Audio.Format.SampleRate)
	require.Equal(t, 2000, len(result.Audio.Data))

	assert.Equal(t, float32(0.5), result.Audio.Data[599*2])
	assert.Equal(t, float32(0.5), result.Audio.Data[599*2+1])
	assert.Equal(t, float32(0.25), result.Audio.Data[600*2])
	assert.Equal(t, float32(0.25), result.Audio.Data[999*2+1])

	assert.Equal(t, []render.MidiAt{
		{Frame: 300, Status: 0x90, Data1: 60, Data2: 100},
		{Frame: 700, Status: 0x80, Data1: 60},
	}, result.Midi)

	// 4 blocks, one split at frame 600.
	assert.Equal(t, 5, len(synth.Calls()))
	assert.False(t, synth.NonRealtime)
}

func TestRenderInput(t *testing.T) {
	input := [][]float32{make([]float32, 300)}
	for i := range input[0] {
		input[0][i] = 1
	}
	r, err := render.New(newChain(t, &mock.Engine{Inputs: 1, Outputs: 1}), blockSize)
	require.NoError(t, err)

	result, err := r.Render(context.Background(), render.Job{Input: input})
	require.NoError(t, err)
	assert.Equal(t, input[0], result.Audio.Data)

	result, err = r.Render(context.Background(), render.Job{Input: input, Length: 500})
	require.NoError(t, err)
	require.Equal(t, 500, len(result.Audio.Data))
	assert.Equal(t, float32(1), result.Audio.Data[299])
	assert.Equal(t, float32(0), result.Audio.Data[300])
}

func TestRenderLanes(t *testing.T) {
	synth := &mock.Engine{Outputs: 1, Value: 1, NumParameters: 1, GainParam: true}
	r, err := render.New(newChain(t, synth), blockSize)
	require.NoError(t, err)

	result, err := r.Render(context.Background(), render.Job{
		Length: 768,
		Lanes: []automation.Lane{
			{
				Stage: 0,
				Index: 0,
				Keys: []automation.Keyframe{
					{Frame: 0, Value: 0},
					{Frame: 512, Value: 1},
				},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, float32(0), result.Audio.Data[255])
	assert.Equal(t, float32(0.5), result.Audio.Data[256])
	assert.Equal(t, float32(1), result.Audio.Data[767])
	assert.Equal(t, float32(1), synth.Param(0))
}

func TestTailFrames(t *testing.T) {
	engine := &mock.Engine{Outputs: 1}
	r, err := render.New(newChain(t, engine), blockSize)
	require.NoError(t, err)
	assert.Equal(t, 88200, r.TailFrames(-1))
	assert.Equal(t, 441, r.TailFrames(0.01))
	assert.Equal(t, 0, r.TailFrames(0))

	engine.Tail = 1.5
	assert.Equal(t, 66150, r.TailFrames(-1))
	engine.Tail = 40
	assert.Equal(t, 88200, r.TailFrames(-1))

	result, err := r.Render(context.Background(), render.Job{Length: 100, Tail: 0.01})
	require.NoError(t, err)
	assert.Equal(t, 541, result.Frames)
}

func TestRenderFail(t *testing.T) {
	_, err := render.New(newChain(t, &mock.Engine{Outputs: 1}), 2*blockSize)
	assert.True(t, errors.Is(err, host.ErrBlockSize))

	testError := errors.New("test error")
	failing := &mock.Engine{Outputs: 1, ErrorOnCall: testError}
	r, err := render.New(newChain(t, failing), blockSize)
	require.NoError(t, err)
	_, err = r.Render(context.Background(), render.Job{Length: 10})
	assert.True(t, errors.Is(err, testError))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Render(ctx, render.Job{Length: 10})
	assert.True(t, errors.Is(err, context.Canceled))

	offline := &mock.Engine{Outputs: 1, Hooks: mock.Hooks{ErrorOnNonRealtime: testError}}
	r, err = render.New(newChain(t, offline), blockSize)
	require.NoError(t, err)
	_, err = r.Render(context.Background(), render.Job{Length: 10})
	assert.True(t, errors.Is(err, testError))
}
