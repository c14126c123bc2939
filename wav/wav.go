// Package wav reads render input from and writes render output to wav
// files.
package wav

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const pcmFormat = 1

var (
	// ErrInvalidFile is returned when file is not a valid wav.
	ErrInvalidFile = errors.New("wav is not valid")
	// ErrBitDepth is returned for bit depths other than 16, 24 and 32.
	ErrBitDepth = errors.New("unsupported bit depth")
)

// File is decoded wav content.
type File struct {
	SampleRate int
	BitDepth   int
	// Channels holds deinterleaved samples in -1..1 range.
	Channels [][]float32
}

// Read decodes the whole wav file at path.
func Read(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidFile, path)
	}
	ib, err := decoder.FullPCMBuffer()
	if err != nil {
		return File{}, fmt.Errorf("decode %v: %w", path, err)
	}
	bitDepth := int(decoder.BitDepth)
	scale, err := fullScale(bitDepth)
	if err != nil {
		return File{}, err
	}
	return File{
		SampleRate: int(decoder.SampleRate),
		BitDepth:   bitDepth,
		Channels:   deinterleave(ib, scale),
	}, nil
}

// Write encodes interleaved buffer as PCM wav at path.
func Write(path string, b *audio.Float32Buffer, bitDepth int) error {
	if b == nil || b.Format == nil {
		return errors.New("format for buffer is not defined")
	}
	scale, err := fullScale(bitDepth)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	e := wav.NewEncoder(f, b.Format.SampleRate, bitDepth, b.Format.NumChannels, pcmFormat)
	ib := &audio.IntBuffer{
		Format:         b.Format,
		Data:           make([]int, len(b.Data)),
		SourceBitDepth: bitDepth,
	}
	for i, v := range b.Data {
		ib.Data[i] = int(clip(v) * scale)
	}
	if err := e.Write(ib); err != nil {
		f.Close()
		return fmt.Errorf("encode %v: %w", path, err)
	}
	if err := e.Close(); err != nil {
		f.Close()
		return fmt.Errorf("encode %v: %w", path, err)
	}
	return f.Close()
}

// deinterleave converts int buffer to per-channel samples.
func deinterleave(ib *audio.IntBuffer, scale float32) [][]float32 {
	numChannels := ib.Format.NumChannels
	if numChannels == 0 {
		return nil
	}
	frames := len(ib.Data) / numChannels
	channels := make([][]float32, numChannels)
	for ch := range channels {
		channels[ch] = make([]float32, frames)
		for i := 0; i < frames; i++ {
			channels[ch][i] = float32(ib.Data[i*numChannels+ch]) / scale
		}
	}
	return channels
}

// fullScale returns the largest positive sample value of bit depth.
func fullScale(bitDepth int) (float32, error) {
	switch bitDepth {
	case 16:
		return 0x7fff, nil
	case 24:
		return 0x7fffff, nil
	case 32:
		return 0x7fffffff, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrBitDepth, bitDepth)
}

func clip(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}
