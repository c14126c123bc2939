package metric_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/host/metric"
)

type meteredA struct{}

type meteredB struct{}

func TestMeter(t *testing.T) {
	sampleRate := 44100.0
	// test cases
	var tests = []struct {
		component          interface{}
		routines           int
		buffers            int
		bufferSize         int64
		expectedSamples    string
		expectedBlocks     string
		expectedComponents string
	}{
		{
			component:          meteredA{},
			routines:           2,
			buffers:            10,
			bufferSize:         100,
			expectedSamples:    "2000",
			expectedBlocks:     "20",
			expectedComponents: "2",
		},
		{
			component:          &meteredA{},
			routines:           2,
			buffers:            10,
			bufferSize:         100,
			expectedSamples:    "4000",
			expectedBlocks:     "40",
			expectedComponents: "4",
		},
	}
	// function to test meter.
	testFn := func(fn metric.MeasureFunc, wg *sync.WaitGroup, buffers int, bufferSize int64) {
		for i := 0; i < buffers; i++ {
			fn(bufferSize)
		}
		wg.Done()
	}

	for _, c := range tests {
		wg := &sync.WaitGroup{}
		wg.Add(c.routines)
		for i := 0; i < c.routines; i++ {
			go testFn(metric.Meter(c.component, sampleRate)(), wg, c.buffers, c.bufferSize)
		}
		// check if no data race.
		wg.Wait()
		values := metric.Get(c.component)
		assert.Equal(t, c.expectedSamples, values[metric.SampleCounter])
		assert.Equal(t, c.expectedBlocks, values[metric.BlockCounter])
		assert.Equal(t, c.expectedComponents, values[metric.ComponentCounter])
	}
}

func TestCounters(t *testing.T) {
	dropped := metric.Dropped(meteredB{})
	errs := metric.Errors(&meteredB{})
	dropped(3)
	dropped(2)
	errs(1)

	values := metric.Get(meteredB{})
	assert.Equal(t, "5", values[metric.DroppedCounter])
	assert.Equal(t, "1", values[metric.ErrorCounter])

	all := metric.GetAll()
	assert.Contains(t, all, "metric_test.meteredB")
}
