// Package automation turns parameter keyframes into block-rate parameter
// changes for offline rendering.
package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrTimeKey is returned when keyframe time can't be parsed.
	ErrTimeKey = errors.New("invalid time key")
	// ErrValue is returned when automation value is neither a number nor
	// a keyframe object.
	ErrValue = errors.New("invalid automation value")
)

// Keyframe is a normalized parameter value at an absolute frame.
type Keyframe struct {
	Frame int
	Value float32
}

// Lane automates a single parameter of a chain stage.
type Lane struct {
	Stage int
	Index int
	Keys  []Keyframe
}

// Expand returns keyframes interpolated linearly at every block boundary
// between given keyframes, which are kept. Nothing is
// produced before the first keyframe and the last value holds after the
// last one.
func (l Lane) Expand(blockSize int) []Keyframe {
	if len(l.Keys) == 0 {
		return nil
	}
	keys := make([]Keyframe, len(l.Keys))
	copy(keys, l.Keys)
	sort.SliceStable(keys, func(i, j int) bool {
		return keys[i].Frame < keys[j].Frame
	})
	if len(keys) == 1 || blockSize <= 0 {
		return keys
	}

	result := make([]Keyframe, 0, len(keys))
	for i := 0; i < len(keys)-1; i++ {
		k0, k1 := keys[i], keys[i+1]
		result = append(result, k0)
		if k1.Frame <= k0.Frame {
			continue
		}
		first := (k0.Frame/blockSize + 1) * blockSize
		span := float64(k1.Frame - k0.Frame)
		for frame := first; frame < k1.Frame; frame += blockSize {
			t := float64(frame-k0.Frame) / span
			v := float64(k0.Value) + t*float64(k1.Value-k0.Value)
			result = append(result, Keyframe{Frame: frame, Value: float32(v)})
		}
	}
	return append(result, keys[len(keys)-1])
}

// ParseTime converts a keyframe time key to a frame. Supported keys are
// frames ("1000"), seconds ("1.5s") and percent of total length ("50%").
func ParseTime(key string, sampleRate float64, total int) (int, error) {
	key = strings.TrimSpace(key)
	var (
		value float64
		err   error
	)
	switch {
	case strings.HasSuffix(key, "%"):
		value, err = strconv.ParseFloat(key[:len(key)-1], 64)
		value = float64(total) * value / 100
	case strings.HasSuffix(key, "s"):
		value, err = strconv.ParseFloat(key[:len(key)-1], 64)
		value *= sampleRate
	default:
		value, err = strconv.ParseFloat(key, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrTimeKey, key, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%w %q: negative time", ErrTimeKey, key)
	}
	return int(value), nil
}

// ResolveFunc returns index of a parameter by name.
type ResolveFunc func(name string) (int, error)

// Parse reads automation of a single stage from JSON object. Keys are
// parameter names, values are either a static normalized value or an
// object of time keys to normalized values:
//
//	{
//	    "Gain": 0.5,
//	    "Cutoff": {"0": 0.1, "1.5s": 0.7, "100%": 1}
//	}
//
// Lanes are returned in parameter index order.
func Parse(r io.Reader, stage int, resolve ResolveFunc, sampleRate float64, total int) ([]Lane, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode automation: %w", err)
	}

	lanes := make([]Lane, 0, len(doc))
	for name, raw := range doc {
		index, err := resolve(name)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		lane := Lane{Stage: stage, Index: index}

		var static float32
		if err := json.Unmarshal(raw, &static); err == nil {
			lane.Keys = []Keyframe{{Frame: 0, Value: static}}
			lanes = append(lanes, lane)
			continue
		}

		var keys map[string]float32
		if err := json.Unmarshal(raw, &keys); err != nil {
			return nil, fmt.Errorf("%w for parameter %q", ErrValue, name)
		}
		for key, value := range keys {
			frame, err := ParseTime(key, sampleRate, total)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", name, err)
			}
			lane.Keys = append(lane.Keys, Keyframe{Frame: frame, Value: value})
		}
		sort.Slice(lane.Keys, func(i, j int) bool {
			return lane.Keys[i].Frame < lane.Keys[j].Frame
		})
		lanes = append(lanes, lane)
	}
	sort.Slice(lanes, func(i, j int) bool {
		return lanes[i].Index < lanes[j].Index
	})
	return lanes, nil
}
