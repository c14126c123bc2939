package automation_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/host/automation"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		description string
		keys        []automation.Keyframe
		blockSize   int
		expected    []automation.Keyframe
	}{
		{
			description: "empty",
			blockSize:   512,
		},
		{
			description: "single",
			keys:        []automation.Keyframe{{Frame: 100, Value: 0.5}},
			blockSize:   512,
			expected:    []automation.Keyframe{{Frame: 100, Value: 0.5}},
		},
		{
			description: "ramp",
			keys: []automation.Keyframe{
				{Frame: 0, Value: 0},
				{Frame: 400, Value: 1},
			},
			blockSize: 100,
			expected: []automation.Keyframe{
				{Frame: 0, Value: 0},
				{Frame: 100, Value: 0.25},
				{Frame: 200, Value: 0.5},
				{Frame: 300, Value: 0.75},
				{Frame: 400, Value: 1},
			},
		},
		{
			description: "unsorted and unaligned",
			keys: []automation.Keyframe{
				{Frame: 250, Value: 0},
				{Frame: 50, Value: 1},
			},
			blockSize: 100,
			expected: []automation.Keyframe{
				{Frame: 50, Value: 1},
				{Frame: 100, Value: 0.75},
				{Frame: 200, Value: 0.25},
				{Frame: 250, Value: 0},
			},
		},
		{
			description: "same frame",
			keys: []automation.Keyframe{
				{Frame: 10, Value: 0.1},
				{Frame: 10, Value: 0.9},
			},
			blockSize: 4,
			expected: []automation.Keyframe{
				{Frame: 10, Value: 0.1},
				{Frame: 10, Value: 0.9},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			lane := automation.Lane{Keys: test.keys}
			result := lane.Expand(test.blockSize)
			require.Equal(t, len(test.expected), len(result))
			for i := range result {
				assert.Equal(t, test.expected[i].Frame, result[i].Frame)
				assert.InDelta(t, test.expected[i].Value, result[i].Value, 1e-6)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		key      string
		expected int
		err      error
	}{
		{key: "1000", expected: 1000},
		{key: " 12.9 ", expected: 12},
		{key: "1.5s", expected: 66150},
		{key: "50%", expected: 500},
		{key: "100%", expected: 1000},
		{key: "abc", err: automation.ErrTimeKey},
		{key: "xs", err: automation.ErrTimeKey},
		{key: "-1", err: automation.ErrTimeKey},
	}
	for _, test := range tests {
		frame, err := automation.ParseTime(test.key, 44100, 1000)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err), "key %q", test.key)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, test.expected, frame, "key %q", test.key)
	}
}

func TestParse(t *testing.T) {
	params := map[string]int{"gain": 0, "cutoff": 3}
	resolve := func(name string) (int, error) {
		if i, ok := params[strings.ToLower(name)]; ok {
			return i, nil
		}
		return 0, fmt.Errorf("parameter not found")
	}

	lanes, err := automation.Parse(strings.NewReader(`{
		"Cutoff": {"100%": 1, "0": 0.1, "0.5s": 0.5},
		"Gain": 0.25
	}`), 1, resolve, 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, []automation.Lane{
		{
			Stage: 1,
			Index: 0,
			Keys:  []automation.Keyframe{{Frame: 0, Value: 0.25}},
		},
		{
			Stage: 1,
			Index: 3,
			Keys: []automation.Keyframe{
				{Frame: 0, Value: 0.1},
				{Frame: 500, Value: 0.5},
				{Frame: 2000, Value: 1},
			},
		},
	}, lanes)

	_, err = automation.Parse(strings.NewReader(`{"Gain": "loud"}`), 0, resolve, 1000, 2000)
	assert.True(t, errors.Is(err, automation.ErrValue))
	_, err = automation.Parse(strings.NewReader(`{"Drive": 1}`), 0, resolve, 1000, 2000)
	assert.Error(t, err)
	_, err = automation.Parse(strings.NewReader(`{"Gain": {"soon": 1}}`), 0, resolve, 1000, 2000)
	assert.True(t, errors.Is(err, automation.ErrTimeKey))
	_, err = automation.Parse(strings.NewReader(`[1, 2]`), 0, resolve, 1000, 2000)
	assert.Error(t, err)
}
