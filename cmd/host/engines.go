package main

import (
	"fmt"
	"strconv"

	"github.com/pipelined/host"
)

// engineConfig is shared by all plugins of a command.
type engineConfig struct {
	SampleRate   float64
	MaxBlockSize int
	Channels     int
	// Notifier is shared by all plugins and the session.
	Notifier *host.Notifier
}

// openEngines loads plugins in chain order. Returned func closes them.
var openEngines = openPlugins

// resolveIndex resolves automation parameter names. Plugins don't expose
// parameter names to the host, so names are indexes.
func resolveIndex(e host.Engine) func(string) (int, error) {
	return func(name string) (int, error) {
		index, err := strconv.Atoi(name)
		if err != nil {
			return 0, err
		}
		if index < 0 || index >= e.NumParams() {
			return 0, fmt.Errorf("parameter %d out of range", index)
		}
		return index, nil
	}
}
