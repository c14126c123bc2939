package main

import (
	"flag"
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/pipelined/host/midiport"
)

type portsCommand struct{}

func (cmd *portsCommand) Name() string {
	return "ports"
}

func (cmd *portsCommand) Help() string {
	return "Show the list of MIDI ports"
}

func (cmd *portsCommand) Register(*flag.FlagSet) {}

func (cmd *portsCommand) Run(out io.Writer) error {
	ports, err := openPorts()
	if err != nil {
		return err
	}
	defer ports.Close()
	return listPorts(out, ports)
}

func openPorts() (*midiport.Ports, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("open MIDI driver: %w", err)
	}
	return midiport.New(drv), nil
}

type portLister interface {
	Inputs() ([]string, error)
	Outputs() ([]string, error)
}

func listPorts(out io.Writer, ports portLister) error {
	ins, err := ports.Inputs()
	if err != nil {
		return err
	}
	outs, err := ports.Outputs()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Inputs:\n")
	for i, name := range ins {
		fmt.Fprintf(out, "\t%d\t%v\n", i, name)
	}
	fmt.Fprintf(out, "Outputs:\n")
	for i, name := range outs {
		fmt.Fprintf(out, "\t%d\t%v\n", i, name)
	}
	return nil
}
