//go:build portaudio

package device_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/host"
	"github.com/pipelined/host/device"
	"github.com/pipelined/host/mock"
	"github.com/pipelined/host/session"
)

func TestPlay(t *testing.T) {
	tone := &mock.Engine{Outputs: 2, Value: 0.1}
	s, err := session.New([]host.Engine{tone})
	require.NoError(t, err)

	d, err := device.Open(s, device.Config{})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	time.Sleep(200 * time.Millisecond)
	assert.NoError(t, d.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, int64(0), s.Callback().Errors())
}
