package mock_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/host"
	"github.com/pipelined/host/mock"
)

func TestProcess(t *testing.T) {
	tests := []struct {
		engine   *mock.Engine
		in       [][]float32
		param    float32
		expected [][]float32
	}{
		{
			engine:   &mock.Engine{Inputs: 1, Outputs: 1},
			in:       [][]float32{{1, 2, 3}},
			expected: [][]float32{{1, 2, 3}},
		},
		{
			engine:   &mock.Engine{Inputs: 1, Outputs: 1, NumParameters: 1, GainParam: true},
			in:       [][]float32{{1, 2, 3}},
			param:    0.5,
			expected: [][]float32{{0.5, 1, 1.5}},
		},
		{
			engine:   &mock.Engine{Inputs: 0, Outputs: 2, Value: 0.25},
			expected: [][]float32{{0.25, 0.25, 0.25}, {0.25, 0.25, 0.25}},
		},
	}

	for _, test := range tests {
		if test.engine.NumParams() > 0 {
			require.NoError(t, test.engine.SetParam(0, test.param))
		}
		out := make([][]float32, len(test.expected))
		for i := range out {
			out[i] = make([]float32, 3)
		}
		err := test.engine.Process(test.in, out, 3)
		assert.NoError(t, err)
		assert.Equal(t, test.expected, out)
		assert.Equal(t, 1, len(test.engine.Calls()))
	}
}

func TestProcessMIDI(t *testing.T) {
	m := &mock.Engine{Inputs: 1, Outputs: 1, EchoMIDI: true}
	midiIn := []host.MidiEvent{
		{Offset: 1, Status: 0x90, Data1: 60, Data2: 100},
		{Offset: 2, Status: 0x80, Data1: 60},
	}
	midiOut := make([]host.MidiEvent, 1)
	n, err := m.ProcessMIDI(nil, nil, 4, midiIn, midiOut)
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, midiIn[0], midiOut[0])

	calls := m.Calls()
	require.Equal(t, 1, len(calls))
	assert.Equal(t, 4, calls[0].Frames)
	assert.Equal(t, midiIn, calls[0].Midi)
}

func TestParams(t *testing.T) {
	m := &mock.Engine{NumParameters: 2}
	assert.True(t, m.Automate(1, 0.75))
	assert.False(t, m.Automate(2, 0.75))
	assert.False(t, m.Automate(-1, 0.75))
	assert.Equal(t, float32(0.75), m.Param(1))
	assert.Equal(t, float32(0), m.Param(5))

	err := m.SetParam(3, 1)
	assert.True(t, errors.Is(err, mock.ErrParamIndex))

	state, err := m.State()
	require.NoError(t, err)
	assert.Equal(t, 8, len(state))

	restored := &mock.Engine{NumParameters: 2}
	require.NoError(t, restored.SetState(state))
	assert.Equal(t, m.Params(), restored.Params())

	err = restored.SetState(state[:3])
	assert.True(t, errors.Is(err, mock.ErrState))
}

func TestHooks(t *testing.T) {
	testError := errors.New("test error")
	m := &mock.Engine{
		Hooks: mock.Hooks{
			ErrorOnReset: testError,
		},
		ErrorOnCall: testError,
	}
	assert.Equal(t, testError, m.Process(nil, nil, 1))
	assert.Equal(t, testError, m.Reset())
	assert.True(t, m.Resetted)

	assert.NoError(t, m.SetNonRealtime(true))
	assert.True(t, m.NonRealtime)
	assert.Equal(t, float64(44100), m.SampleRate())
}
