package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"

	"github.com/pipelined/host"
	"github.com/pipelined/host/automation"
	"github.com/pipelined/host/render"
	"github.com/pipelined/host/signal"
	"github.com/pipelined/host/wav"
)

const defaultSampleRate = 44100

type renderCommand struct {
	in         string
	out        string
	plugins    stringList
	automation string
	stage      int
	length     float64
	tail       float64
	sampleRate float64
	channels   int
	blockSize  int
	bitDepth   int
}

func (cmd *renderCommand) Name() string {
	return "render"
}

func (cmd *renderCommand) Help() string {
	return "Render audio through listed plugins offline"
}

func (cmd *renderCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.in, "in", "", "input wav file to process")
	fs.StringVar(&cmd.out, "out", "", "output wav file to save rendered audio (required)")
	fs.Var(&cmd.plugins, "plugin", "semicolon separated plugin paths in chain order (required)")
	fs.StringVar(&cmd.automation, "automation", "", "JSON file with automation of a single stage")
	fs.IntVar(&cmd.stage, "stage", 0, "stage automated with -automation")
	fs.Float64Var(&cmd.length, "length", 0, "seconds to render, defaults to input length")
	fs.Float64Var(&cmd.tail, "tail", -1, "seconds rendered after length, negative selects chain tail")
	fs.Float64Var(&cmd.sampleRate, "rate", defaultSampleRate, "sample rate without input file")
	fs.IntVar(&cmd.channels, "channels", 2, "number of plugin channels")
	fs.IntVar(&cmd.blockSize, "block", render.DefaultBlockSize, "render block size")
	fs.IntVar(&cmd.bitDepth, "bits", 16, "output bit depth")
}

func (cmd *renderCommand) Validate() error {
	var errs []error
	if cmd.out == "" {
		errs = append(errs, errors.New("missing -out required flag"))
	}
	if len(cmd.plugins) == 0 {
		errs = append(errs, errors.New("missing -plugin required flag"))
	}
	if cmd.in == "" && cmd.length <= 0 {
		errs = append(errs, errors.New("-length is required without -in"))
	}
	return errors.Join(errs...)
}

func (cmd *renderCommand) Run(out io.Writer) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	var input wav.File
	sampleRate := cmd.sampleRate
	if cmd.in != "" {
		var err error
		if input, err = wav.Read(cmd.in); err != nil {
			return err
		}
		sampleRate = float64(input.SampleRate)
	}

	engines, closeEngines, err := openEngines(cmd.plugins, engineConfig{
		SampleRate:   sampleRate,
		MaxBlockSize: cmd.blockSize,
		Channels:     cmd.channels,
	})
	if err != nil {
		return err
	}
	defer closeEngines()
	chain, err := host.NewChain(engines, host.WithMaxBlockSize(cmd.blockSize))
	if err != nil {
		return err
	}
	defer chain.Close()
	r, err := render.New(chain, cmd.blockSize)
	if err != nil {
		return err
	}

	job := render.Job{
		Input: input.Channels,
		Tail:  cmd.tail,
	}
	if cmd.length > 0 {
		job.Length = signal.FramesOf(chain.SampleRate(), cmd.length)
	}
	if cmd.automation != "" {
		stage := chain.Stage(cmd.stage)
		if stage == nil {
			return fmt.Errorf("automation stage %d out of range", cmd.stage)
		}
		length := job.Length
		if length == 0 {
			length = signal.Float32(job.Input).Size()
		}
		f, err := os.Open(cmd.automation)
		if err != nil {
			return err
		}
		job.Lanes, err = automation.Parse(f, cmd.stage, resolveIndex(stage), chain.SampleRate(), length)
		f.Close()
		if err != nil {
			return err
		}
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result, err := r.Render(ctx, job)
	if err != nil {
		return err
	}
	if err := wav.Write(cmd.out, result.Audio, cmd.bitDepth); err != nil {
		return err
	}
	fmt.Fprintf(out, "Rendered %d frames (%v) to %v\n", result.Frames, signal.DurationOf(chain.SampleRate(), int64(result.Frames)), cmd.out)
	return nil
}
