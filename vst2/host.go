package vst2

import (
	"math"
	"sync/atomic"

	"github.com/pipelined/host"
)

const (
	// hostVersion is the VST version the host reports.
	hostVersion = 2400

	processLevelRealtime = 2
	processLevelOffline  = 4

	defaultTempo       = 120
	defaultNotesPerBar = 4
	defaultNoteValue   = 4
)

// request is a plugin call the host forwards as a notification.
type request int

const (
	requestAutomate request = iota
	requestBeginEdit
	requestEndEdit
	requestIOChanged
	requestUpdateDisplay
)

// notification returns what the host reports for plugin request. Index is
// the parameter index of automation and edit requests, value is the new
// normalized value of an automated parameter.
func notification(r request, index int64, value float64) (host.Notification, bool) {
	switch r {
	case requestAutomate:
		return host.Notification{Kind: host.ParamValue, Index: int(index), Value: float32(value)}, true
	case requestBeginEdit:
		return host.Notification{Kind: host.GestureBegin, Index: int(index)}, true
	case requestEndEdit:
		return host.Notification{Kind: host.GestureEnd, Index: int(index)}, true
	case requestIOChanged:
		return host.Notification{Kind: host.Changed, Flags: host.LatencyChanged}, true
	case requestUpdateDisplay:
		return host.Notification{Kind: host.Changed, Flags: host.ParamInfoChanged}, true
	}
	return host.Notification{}, false
}

// transport tracks playback position reported to plugins. The position is
// advanced by the audio thread and read from plugin callbacks.
type transport struct {
	sampleRate  float64
	tempo       float64
	notesPerBar int
	position    atomic.Int64
}

func newTransport(sampleRate float64) *transport {
	return &transport{
		sampleRate:  sampleRate,
		tempo:       defaultTempo,
		notesPerBar: defaultNotesPerBar,
	}
}

func (t *transport) advance(frames int) {
	t.position.Add(int64(frames))
}

func (t *transport) reset() {
	t.position.Store(0)
}

// at returns current position in samples, in quarter notes and the
// position of the current bar start in quarter notes.
func (t *transport) at() (samples int64, ppq, bar float64) {
	samples = t.position.Load()
	samplesPerBeat := 60 / t.tempo * t.sampleRate
	ppq = float64(samples) / samplesPerBeat
	bar = math.Floor(ppq/float64(t.notesPerBar)) * float64(t.notesPerBar)
	return samples, ppq, bar
}

// processLevel returns the level reported to plugins.
func processLevel(offline bool) int {
	if offline {
		return processLevelOffline
	}
	return processLevelRealtime
}
