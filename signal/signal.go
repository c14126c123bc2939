// Package signal provides helpers for non-interleaved float32 audio buffers:
// 	- allocate and clear channel buffers
// 	- convert between interleaved and non-interleaved layouts
// 	- take sub-range views without copying
package signal

import (
	"time"
)

// Float32 is a non-interleaved float32 signal: Float32[channel][frame].
type Float32 [][]float32

// DurationOf returns time duration of passed samples for this sample rate.
func DurationOf(sampleRate float64, samples int64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(samples) / sampleRate * float64(time.Second))
}

// FramesOf returns number of frames needed to cover seconds at sample rate,
// rounded up.
func FramesOf(sampleRate float64, seconds float64) int {
	if sampleRate <= 0 || seconds <= 0 {
		return 0
	}
	frames := seconds * sampleRate
	n := int(frames)
	if float64(n) < frames {
		n++
	}
	return n
}

// Alloc returns a zeroed buffer of specified dimensions. All channels share
// one backing array.
func Alloc(numChannels int, bufferSize int) Float32 {
	if numChannels <= 0 {
		return Float32{}
	}
	storage := make([]float32, numChannels*bufferSize)
	result := make([][]float32, numChannels)
	for i := range result {
		result[i] = storage[i*bufferSize : (i+1)*bufferSize : (i+1)*bufferSize]
	}
	return result
}

// NumChannels returns number of channels in this buffer.
func (floats Float32) NumChannels() int {
	return len(floats)
}

// Size returns number of frames in a single channel.
func (floats Float32) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Clear zeroes frames [start, end) in every channel. Out of range bounds
// are clipped to the channel length.
func (floats Float32) Clear(start, end int) {
	for _, ch := range floats {
		clearRange(ch, start, end)
	}
}

// ClearChannels zeroes frames [start, end) in channels [from, to).
func (floats Float32) ClearChannels(from, to, start, end int) {
	if to > len(floats) {
		to = len(floats)
	}
	for i := from; i < to; i++ {
		clearRange(floats[i], start, end)
	}
}

func clearRange(ch []float32, start, end int) {
	if end > len(ch) {
		end = len(ch)
	}
	if start < 0 {
		start = 0
	}
	for i := start; i < end; i++ {
		ch[i] = 0
	}
}

// View writes sub-slices [start, end) of the first len(dst) channels of
// floats into dst and returns dst. It does not allocate; dst is reused by
// callers on the audio thread. If floats is nil, nil is returned so the
// receiver treats it as silence or discard.
func (floats Float32) View(dst [][]float32, start, end int) [][]float32 {
	if floats == nil {
		return nil
	}
	n := len(floats)
	if n > cap(dst) {
		n = cap(dst)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = floats[i][start:end]
	}
	return dst
}

// Append buffers set to existing one.
// New buffer is returned if floats is nil.
func (floats Float32) Append(source Float32) Float32 {
	if floats == nil {
		floats = make([][]float32, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float32, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// Interleave writes floats into dst in interleaved order and returns the
// number of values written.
func (floats Float32) Interleave(dst []float32) int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return 0
	}
	frames := floats.Size()
	if max := len(dst) / numChannels; frames > max {
		frames = max
	}
	for j := range floats {
		for i := 0; i < frames; i++ {
			dst[i*numChannels+j] = floats[j][i]
		}
	}
	return frames * numChannels
}

// Deinterleave reads interleaved src into floats and returns number of
// frames read.
func (floats Float32) Deinterleave(src []float32) int {
	numChannels := floats.NumChannels()
	if numChannels == 0 {
		return 0
	}
	frames := len(src) / numChannels
	if frames > floats.Size() {
		frames = floats.Size()
	}
	for j := range floats {
		for i := 0; i < frames; i++ {
			floats[j][i] = src[i*numChannels+j]
		}
	}
	return frames
}
