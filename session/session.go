// Package session wires a chain, its queues and the audio callback together
// and enforces the shutdown order: stop, wait for the last callback, close.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/pipelined/host"
	"github.com/pipelined/host/log"
	"github.com/pipelined/host/metric"
	"github.com/pipelined/host/ring"
)

// DefaultNotifications is capacity of the session notification queue.
const DefaultNotifications = 64

var (
	// ErrRunning is returned when a running session is closed.
	ErrRunning = errors.New("session is running")
	// ErrClosed is returned when a closed session is started.
	ErrClosed = errors.New("session is closed")
)

// Session is a top level abstraction. It owns the chain, the MIDI and
// automation queues and the callback, but not the engines.
type Session struct {
	id  string
	log log.Logger

	chain      *host.Chain
	callback   *host.Callback
	midiIn     *ring.Buffer[host.MidiEvent]
	midiOut    *ring.Buffer[host.MidiEvent]
	automation *ring.Buffer[host.ChainParamChange]
	notifier   *host.Notifier
	dropped    metric.CountFunc

	midiCapacity int
	maxBlockSize int
	input        host.InputFunc
	metered      bool

	mu      sync.Mutex
	running atomic.Bool
	closed  bool
}

// Option of a session. It returns an option which restores previous value.
type Option func(s *Session) Option

// WithMidiCapacity defines capacity of MIDI and automation queues.
func WithMidiCapacity(capacity int) Option {
	return func(s *Session) Option {
		previous := s.midiCapacity
		s.midiCapacity = capacity
		return WithMidiCapacity(previous)
	}
}

// WithMaxBlockSize defines the largest callback the session renders at once.
func WithMaxBlockSize(size int) Option {
	return func(s *Session) Option {
		previous := s.maxBlockSize
		s.maxBlockSize = size
		return WithMaxBlockSize(previous)
	}
}

// WithInput defines the source of chain input.
func WithInput(fn host.InputFunc) Option {
	return func(s *Session) Option {
		previous := s.input
		s.input = fn
		return WithInput(previous)
	}
}

// WithLogger defines session logger.
func WithLogger(l log.Logger) Option {
	return func(s *Session) Option {
		previous := s.log
		s.log = l
		return WithLogger(previous)
	}
}

// WithMetric enables expvar counters for the session callback.
func WithMetric(enabled bool) Option {
	return func(s *Session) Option {
		previous := s.metered
		s.metered = enabled
		return WithMetric(previous)
	}
}

// WithNotifier defines the queue engines post notifications to. Engines
// that need it at construction are created with the same notifier.
func WithNotifier(n *host.Notifier) Option {
	return func(s *Session) Option {
		previous := s.notifier
		s.notifier = n
		return WithNotifier(previous)
	}
}

// New creates a new session for engines.
func New(engines []host.Engine, options ...Option) (*Session, error) {
	s := &Session{
		id:           xid.New().String(),
		log:          log.GetLogger(),
		midiCapacity: ring.DefaultCapacity,
		maxBlockSize: host.DefaultMaxBlockSize,
	}
	for _, option := range options {
		option(s)
	}
	s.log = s.log.WithField("session", s.id)

	chain, err := host.NewChain(engines,
		host.WithMaxBlockSize(s.maxBlockSize),
		host.WithMidiCapacity(s.midiCapacity),
		host.WithName(s.id),
	)
	if err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}
	s.chain = chain
	s.midiIn = ring.New[host.MidiEvent](s.midiCapacity)
	s.midiOut = ring.New[host.MidiEvent](s.midiCapacity)
	s.automation = ring.New[host.ChainParamChange](s.midiCapacity)
	if s.notifier == nil {
		s.notifier = host.NewNotifier(DefaultNotifications)
	}
	s.dropped = metric.Dropped(s)

	callbackOptions := []host.CallbackOption{
		host.WithMidiInput(s.midiIn),
		host.WithMidiOutput(host.SinkFunc(s.midiOut.Push)),
		host.WithAutomation(s.automation),
	}
	if s.input != nil {
		callbackOptions = append(callbackOptions, host.WithInput(s.input))
	}
	if s.metered {
		callbackOptions = append(callbackOptions, host.WithMetric())
	}
	s.callback, err = host.NewCallback(chain, callbackOptions...)
	if err != nil {
		return nil, fmt.Errorf("create callback: %w", err)
	}
	s.log.Debug(fmt.Sprintf("created with %d stages at %.0f Hz", chain.Len(), chain.SampleRate()))
	return s, nil
}

// ID returns session identity.
func (s *Session) ID() string {
	return s.id
}

// SendMIDI queues an event for the next callback. Offset is the frame
// within that callback. It never blocks and returns false if the queue
// is full. Only one goroutine may send.
func (s *Session) SendMIDI(e host.MidiEvent) bool {
	if s.midiIn.Push(e) {
		return true
	}
	s.dropped(1)
	return false
}

// Automate queues a parameter change for the next callback. This is the
// only way to change parameters while the session is running. Only one
// goroutine may automate.
func (s *Session) Automate(pc host.ChainParamChange) bool {
	if s.automation.Push(pc) {
		return true
	}
	s.dropped(1)
	return false
}

// Callback returns the audio thread entry point.
func (s *Session) Callback() *host.Callback {
	return s.callback
}

// Chain returns session chain.
func (s *Session) Chain() *host.Chain {
	return s.chain
}

// MidiOut returns the queue of MIDI emitted by the first stage. Only one
// goroutine may consume it.
func (s *Session) MidiOut() *ring.Buffer[host.MidiEvent] {
	return s.midiOut
}

// Notifier returns the queue engines post notifications to.
func (s *Session) Notifier() *host.Notifier {
	return s.notifier
}

// Running reports whether the session is started.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Start marks session as running. The audio backend is expected to start
// calling the callback after this.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running.Swap(true) {
		return nil
	}
	s.log.Info("started")
	return nil
}

// Stop marks session as stopped. The audio backend must not call the
// callback after its own stop has returned.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Swap(false) {
		s.log.Info("stopped")
	}
}

// States returns state blobs of all engines.
func (s *Session) States() ([][]byte, error) {
	states := make([][]byte, s.chain.Len())
	for i := range states {
		state, err := s.chain.Stage(i).State()
		if err != nil {
			return nil, &host.StageError{Stage: i, Err: err}
		}
		states[i] = state
	}
	return states, nil
}

// Restore applies state blobs to engines. It must not be called while the
// session is running.
func (s *Session) Restore(states [][]byte) error {
	if s.Running() {
		return ErrRunning
	}
	if len(states) != s.chain.Len() {
		return fmt.Errorf("restore %d states for %d stages", len(states), s.chain.Len())
	}
	for i, state := range states {
		if err := s.chain.Stage(i).SetState(state); err != nil {
			return &host.StageError{Stage: i, Err: err}
		}
	}
	return nil
}

// Close releases the chain. Engines are not closed. It fails if the
// session is running.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrRunning
	}
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Debug("closed")
	return s.chain.Close()
}
