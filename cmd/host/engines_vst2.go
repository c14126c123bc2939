//go:build vst2

package main

import (
	"github.com/pipelined/host"
	"github.com/pipelined/host/vst2"
)

func openPlugins(paths []string, cfg engineConfig) ([]host.Engine, func(), error) {
	plugins := make([]*vst2.Engine, 0, len(paths))
	closeAll := func() {
		for _, p := range plugins {
			p.Close()
		}
	}
	engines := make([]host.Engine, 0, len(paths))
	for _, path := range paths {
		p, err := vst2.Open(path, vst2.Config{
			SampleRate:   cfg.SampleRate,
			MaxBlockSize: cfg.MaxBlockSize,
			Inputs:       cfg.Channels,
			Outputs:      cfg.Channels,
			Notifier:     cfg.Notifier,
		})
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		plugins = append(plugins, p)
		engines = append(engines, p)
	}
	return engines, closeAll, nil
}
