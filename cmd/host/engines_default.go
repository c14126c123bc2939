//go:build !vst2

package main

import (
	"errors"

	"github.com/pipelined/host"
)

func openPlugins([]string, engineConfig) ([]host.Engine, func(), error) {
	return nil, nil, errors.New("built without vst2 support, rebuild with -tags vst2")
}
