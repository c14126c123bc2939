// Package metric keeps per-type expvar counters of host components.
//
// Counters are grouped by component type, so all callbacks driving the same
// kind of target share one set of values.
package metric

import (
	"expvar"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipelined/host/signal"
)

const componentsLabel = "host.components"

const (
	// BlockCounter is the number of rendered callbacks.
	BlockCounter = "Blocks"
	// SampleCounter is the number of rendered frames.
	SampleCounter = "Samples"
	// LatencyCounter is the time between the two latest callbacks.
	LatencyCounter = "Latency"
	// DurationCounter is the audio time rendered so far.
	DurationCounter = "Duration"
	// ComponentCounter is the number of metered instances of a type.
	ComponentCounter = "Components"
	// DroppedCounter counts events lost on full queues.
	DroppedCounter = "Dropped"
	// ErrorCounter counts processing errors swallowed on the audio thread.
	ErrorCounter = "Errors"
)

var (
	components = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		BlockCounter,
		SampleCounter,
		LatencyCounter,
		DurationCounter,
		ComponentCounter,
		DroppedCounter,
		ErrorCounter,
	}
)

// Get returns formatted counters of the component's type keyed by
// counter name.
func Get(component interface{}) map[string]string {
	return getCounters(getType(component))
}

// GetAll returns counters of every metered type keyed by type name.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(componentType string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(componentType, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc starts a measurement. Latency of the first callback is taken
// from the moment it's called, so call it when rendering starts.
type ResetFunc func() MeasureFunc

// MeasureFunc records one rendered callback of n frames. It doesn't
// allocate and can run on the audio thread.
type MeasureFunc func(n int64)

// CountFunc adds delta to a single counter.
type CountFunc func(delta int64)

// Meter registers one more instance of the component's type and returns
// a function that starts measuring it at sampleRate.
func Meter(component interface{}, sampleRate float64) ResetFunc {
	t := getType(component)
	metric := components.get(t)
	metric.components.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			bufferSize     int64
			bufferDuration time.Duration
		)
		return func(s int64) {
			metric.latency.set(time.Since(calledAt))
			metric.blocks.Add(1)
			metric.samples.Add(s)
			// duration is cached per size.
			if bufferSize != s {
				bufferSize = s
				bufferDuration = signal.DurationOf(sampleRate, s)
			}
			metric.duration.add(bufferDuration)
			calledAt = time.Now()
		}
	}
}

// Dropped returns a counter of lost events for component type.
func Dropped(component interface{}) CountFunc {
	return components.get(getType(component)).dropped.Add
}

// Errors returns a counter of swallowed errors for component type.
func Errors(component interface{}) CountFunc {
	return components.get(getType(component)).errors.Add
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(componentType string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[componentType]; ok {
		return metric
	}
	metric := newMetric(componentType)
	m.m[componentType] = metric
	return metric
}

type metric struct {
	key        string
	components *expvar.Int
	blocks     *expvar.Int
	samples    *expvar.Int
	dropped    *expvar.Int
	errors     *expvar.Int
	latency    *duration
	duration   *duration
}

func newMetric(componentType string) metric {
	m := metric{
		key:        componentType,
		components: expvar.NewInt(key(componentType, ComponentCounter)),
		blocks:     expvar.NewInt(key(componentType, BlockCounter)),
		samples:    expvar.NewInt(key(componentType, SampleCounter)),
		dropped:    expvar.NewInt(key(componentType, DroppedCounter)),
		errors:     expvar.NewInt(key(componentType, ErrorCounter)),
		latency:    &duration{},
		duration:   &duration{},
	}
	expvar.Publish(key(componentType, LatencyCounter), m.latency)
	expvar.Publish(key(componentType, DurationCounter), m.duration)
	return m
}

func key(componentType, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, componentType, counter)
}

func getType(component interface{}) string {
	rv := reflect.ValueOf(component)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	return rv.Type().String()
}

// duration is an expvar.Var holding a time.Duration.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
