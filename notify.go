package host

import (
	"context"
	"time"

	"github.com/pipelined/host/ring"
)

// NotificationKind tells what a plugin reported.
type NotificationKind int

const (
	// ParamValue reports a parameter changed by the plugin itself.
	ParamValue NotificationKind = iota
	// GestureBegin reports the start of a parameter edit in plugin UI.
	GestureBegin
	// GestureEnd reports the end of a parameter edit in plugin UI.
	GestureEnd
	// Changed reports a change of plugin metadata, see ChangeFlags.
	Changed
)

func (k NotificationKind) String() string {
	switch k {
	case ParamValue:
		return "param value"
	case GestureBegin:
		return "gesture begin"
	case GestureEnd:
		return "gesture end"
	case Changed:
		return "changed"
	}
	return "unknown"
}

// ChangeFlags describe what changed in a Changed notification.
type ChangeFlags uint32

const (
	// LatencyChanged means LatencySamples returns a new value.
	LatencyChanged ChangeFlags = 1 << iota
	// ParamInfoChanged means parameter count or names changed.
	ParamInfoChanged
	// ProgramChanged means the current program changed.
	ProgramChanged
	// NonParamStateChanged means state not exposed as parameters changed.
	NonParamStateChanged
)

// Notification is a message sent by an engine to the host.
type Notification struct {
	Kind  NotificationKind
	Index int
	Value float32
	Flags ChangeFlags
}

// Notifier carries plugin notifications from the thread they are raised
// on to a control goroutine. Engines never call back into the host
// synchronously; they Post and the host Watches.
type Notifier struct {
	queue *ring.Buffer[Notification]
}

// NewNotifier returns a notifier that holds up to capacity pending
// notifications.
func NewNotifier(capacity int) *Notifier {
	return &Notifier{
		queue: ring.New[Notification](capacity),
	}
}

// Post queues a notification. It never blocks and returns false when the
// queue is full. Only one goroutine may post.
func (n *Notifier) Post(v Notification) bool {
	return n.queue.Push(v)
}

// Watch calls fn for every posted notification, polling the queue every
// interval until ctx is done. Pending notifications are delivered before
// Watch returns. Only one goroutine may watch.
func (n *Notifier) Watch(ctx context.Context, interval time.Duration, fn func(Notification)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			n.drain(fn)
			return
		case <-ticker.C:
			n.drain(fn)
		}
	}
}

func (n *Notifier) drain(fn func(Notification)) {
	for {
		v, ok := n.queue.Pop()
		if !ok {
			return
		}
		fn(v)
	}
}
