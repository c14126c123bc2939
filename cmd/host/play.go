package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pipelined/host"
	"github.com/pipelined/host/device"
	"github.com/pipelined/host/log"
	"github.com/pipelined/host/metric"
	"github.com/pipelined/host/midinet"
	"github.com/pipelined/host/session"
)

const pollInterval = 5 * time.Millisecond

type playCommand struct {
	plugins      stringList
	sampleRate   float64
	channels     int
	bufferFrames int
	duration     time.Duration
	midiIn       int
	midiOut      int
	virtualIn    string
	virtualOut   string
	natsURL      string
	subject      string
}

func (cmd *playCommand) Name() string {
	return "play"
}

func (cmd *playCommand) Help() string {
	return "Play listed plugins through default audio output"
}

func (cmd *playCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.plugins, "plugin", "semicolon separated plugin paths in chain order (required)")
	fs.Float64Var(&cmd.sampleRate, "rate", defaultSampleRate, "sample rate")
	fs.IntVar(&cmd.channels, "channels", 2, "number of plugin channels")
	fs.IntVar(&cmd.bufferFrames, "frames", 512, "device buffer size in frames")
	fs.DurationVar(&cmd.duration, "duration", 0, "stop after duration, runs until interrupted if zero")
	fs.IntVar(&cmd.midiIn, "midi-in", -1, "index of MIDI input port")
	fs.IntVar(&cmd.midiOut, "midi-out", -1, "index of MIDI output port")
	fs.StringVar(&cmd.virtualIn, "midi-in-virtual", "", "name of virtual MIDI input port to create")
	fs.StringVar(&cmd.virtualOut, "midi-out-virtual", "", "name of virtual MIDI output port to create")
	fs.StringVar(&cmd.natsURL, "nats", "", "NATS server URL to exchange MIDI with")
	fs.StringVar(&cmd.subject, "subject", "host.midi", "NATS subject of incoming MIDI")
}

func (cmd *playCommand) Validate() error {
	var errs []error
	if len(cmd.plugins) == 0 {
		errs = append(errs, errors.New("missing -plugin required flag"))
	}
	// MIDI queues have a single producer and a single consumer.
	if err := exclusive(map[string]bool{
		"-nats":            cmd.natsURL != "",
		"-midi-in":         cmd.midiIn >= 0,
		"-midi-in-virtual": cmd.virtualIn != "",
	}); err != nil {
		errs = append(errs, err)
	}
	if err := exclusive(map[string]bool{
		"-nats":             cmd.natsURL != "",
		"-midi-out":         cmd.midiOut >= 0,
		"-midi-out-virtual": cmd.virtualOut != "",
	}); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (cmd *playCommand) Run(out io.Writer) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	l := log.GetLogger()
	notifier := host.NewNotifier(session.DefaultNotifications)
	engines, closeEngines, err := openEngines(cmd.plugins, engineConfig{
		SampleRate:   cmd.sampleRate,
		MaxBlockSize: host.DefaultMaxBlockSize,
		Channels:     cmd.channels,
		Notifier:     notifier,
	})
	if err != nil {
		return err
	}
	defer closeEngines()

	s, err := session.New(engines,
		session.WithLogger(l),
		session.WithMetric(true),
		session.WithNotifier(notifier),
	)
	if err != nil {
		return err
	}
	defer s.Close()
	d, err := device.Open(s, device.Config{BufferFrames: cmd.bufferFrames})
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if cmd.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.duration)
		defer cancel()
	}
	g, ctx := errgroup.WithContext(ctx)

	if cmd.midiIn >= 0 || cmd.midiOut >= 0 || cmd.virtualIn != "" || cmd.virtualOut != "" {
		ports, err := openPorts()
		if err != nil {
			return err
		}
		defer ports.Close()
		var stopListen func()
		switch {
		case cmd.midiIn >= 0:
			stopListen, err = ports.ListenTo(cmd.midiIn, s.SendMIDI)
		case cmd.virtualIn != "":
			stopListen, err = ports.ListenToVirtual(cmd.virtualIn, s.SendMIDI)
		}
		if err != nil {
			return err
		}
		if stopListen != nil {
			defer stopListen()
		}
		switch {
		case cmd.midiOut >= 0:
			g.Go(func() error {
				return ports.Forward(ctx, cmd.midiOut, s.MidiOut(), pollInterval)
			})
		case cmd.virtualOut != "":
			g.Go(func() error {
				return ports.ForwardVirtual(ctx, cmd.virtualOut, s.MidiOut(), pollInterval)
			})
		}
	}

	if cmd.natsURL != "" {
		conn, err := midinet.Connect(cmd.natsURL, "host-"+s.ID())
		if err != nil {
			return err
		}
		defer conn.Close()
		bridge := midinet.NewBridge(conn, cmd.subject, l)
		if err := bridge.Subscribe(s.SendMIDI); err != nil {
			return err
		}
		defer bridge.Unsubscribe()
		g.Go(func() error {
			return bridge.Publish(ctx, s.MidiOut(), pollInterval)
		})
	}

	g.Go(func() error {
		s.Notifier().Watch(ctx, pollInterval, func(n host.Notification) {
			l.Info(fmt.Sprintf("stage notification: %v index %d value %v", n.Kind, n.Index, n.Value))
		})
		return nil
	})

	if err := d.Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Playing %d plugins at %.0f Hz, press Ctrl+C to stop\n", s.Chain().Len(), s.Chain().SampleRate())
	<-ctx.Done()
	if err := d.Stop(); err != nil {
		return err
	}
	if err := g.Wait(); err != nil {
		return err
	}
	printMetric(out, metric.Get(s.Callback()))
	return nil
}

// exclusive returns an error if more than one of flags is set.
func exclusive(flags map[string]bool) error {
	var set []string
	for name, ok := range flags {
		if ok {
			set = append(set, name)
		}
	}
	if len(set) < 2 {
		return nil
	}
	sort.Strings(set)
	return fmt.Errorf("%v are exclusive", strings.Join(set, " and "))
}

func printMetric(out io.Writer, values map[string]string) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "%v: %v\n", k, values[k])
	}
}
