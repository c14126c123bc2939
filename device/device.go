// Package device plays a session through the default PortAudio output.
package device

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/pipelined/host/log"
	"github.com/pipelined/host/session"
)

const defaultBufferFrames = 512

var (
	// ErrSampleRate is returned when device and chain sample rates differ.
	ErrSampleRate = errors.New("device sample rate doesn't match chain")
	// ErrBufferFrames is returned when device buffer exceeds chain block size.
	ErrBufferFrames = errors.New("device buffer exceeds chain block size")
	// ErrChannels is returned when there are no output channels.
	ErrChannels = errors.New("no output channels")
)

// Config of output stream. Zero values are replaced with chain properties.
type Config struct {
	SampleRate     float64
	BufferFrames   int
	OutputChannels int
}

// stream is an opened audio stream.
type stream interface {
	Start() error
	Stop() error
	Close() error
}

// backend opens output streams that call fn from the audio thread.
type backend interface {
	Initialize() error
	Terminate() error
	OpenOutput(cfg Config, fn func(out [][]float32)) (stream, error)
}

// Device drives session callback from hardware.
type Device struct {
	session *session.Session
	backend backend
	stream  stream
	cfg     Config
	log     log.Logger

	mu     sync.Mutex
	closed bool
}

// Open initializes PortAudio and opens the default output stream for the
// session. The stream isn't started.
func Open(s *session.Session, cfg Config) (*Device, error) {
	return open(portaudioBackend{}, s, cfg)
}

func open(b backend, s *session.Session, cfg Config) (*Device, error) {
	chain := s.Chain()
	if cfg.SampleRate == 0 {
		cfg.SampleRate = chain.SampleRate()
	}
	if math.Abs(cfg.SampleRate-chain.SampleRate()) > 0.1 {
		return nil, fmt.Errorf("%w: %.0f Hz, chain runs at %.0f Hz", ErrSampleRate, cfg.SampleRate, chain.SampleRate())
	}
	if cfg.BufferFrames == 0 {
		cfg.BufferFrames = defaultBufferFrames
	}
	if cfg.BufferFrames > chain.MaxBlockSize() {
		return nil, fmt.Errorf("%w: %d frames", ErrBufferFrames, cfg.BufferFrames)
	}
	if cfg.OutputChannels == 0 {
		cfg.OutputChannels = chain.NumOutputs()
	}
	if cfg.OutputChannels <= 0 {
		return nil, ErrChannels
	}

	if err := b.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio: %w", err)
	}
	d := &Device{
		session: s,
		backend: b,
		cfg:     cfg,
		log:     log.GetLogger().WithField("session", s.ID()),
	}
	st, err := b.OpenOutput(cfg, d.render)
	if err != nil {
		b.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	d.stream = st
	d.log.Debug(fmt.Sprintf("opened %d channels at %.0f Hz, %d frames", cfg.OutputChannels, cfg.SampleRate, cfg.BufferFrames))
	return d, nil
}

// render is called from the audio thread.
func (d *Device) render(out [][]float32) {
	if len(out) == 0 {
		return
	}
	if !d.session.Running() {
		for _, ch := range out {
			for i := range ch {
				ch[i] = 0
			}
		}
		return
	}
	d.session.Callback().Render(out, len(out[0]))
}

// Config returns resolved stream configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// Start starts the session and the stream.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return session.ErrClosed
	}
	if err := d.session.Start(); err != nil {
		return err
	}
	if err := d.stream.Start(); err != nil {
		d.session.Stop()
		return fmt.Errorf("start stream: %w", err)
	}
	return nil
}

// Stop stops the stream and waits for the last callback to return, then
// stops the session.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop()
}

func (d *Device) stop() error {
	if !d.session.Running() {
		return nil
	}
	err := d.stream.Stop()
	d.session.Stop()
	if err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	return nil
}

// Close stops the device if needed, closes the stream and terminates
// PortAudio. Session is not closed.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	// stream and PortAudio are released even if stop fails.
	errs := []error{d.stop()}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := d.backend.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate: %w", err))
	}
	return errors.Join(errs...)
}

// portaudioBackend opens streams on the default PortAudio device.
type portaudioBackend struct{}

func (portaudioBackend) Initialize() error {
	return portaudio.Initialize()
}

func (portaudioBackend) Terminate() error {
	return portaudio.Terminate()
}

func (portaudioBackend) OpenOutput(cfg Config, fn func(out [][]float32)) (stream, error) {
	s, err := portaudio.OpenDefaultStream(0, cfg.OutputChannels, cfg.SampleRate, cfg.BufferFrames, fn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
