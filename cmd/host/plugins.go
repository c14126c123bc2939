package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/pipelined/host/vst2"
)

type pluginsCommand struct {
	scan stringList
}

func (cmd *pluginsCommand) Name() string {
	return "plugins"
}

func (cmd *pluginsCommand) Help() string {
	return "Show the list of available plugins"
}

func (cmd *pluginsCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.scan, "scan", "semicolon separated paths to scan for plugins")
}

func (cmd *pluginsCommand) Run(out io.Writer) error {
	paths := append(vst2.DefaultScanPaths(), cmd.scan...)
	fmt.Fprintf(out, "Scan paths:\n")
	for _, path := range paths {
		fmt.Fprintf(out, "\t%v\n", path)
	}
	libs := vst2.Scan(paths...)
	fmt.Fprintf(out, "Available plugins:\n")
	if len(libs) == 0 {
		fmt.Fprintf(out, "\t[No plugins found]\n")
		return nil
	}
	fmt.Fprint(out, libs)
	return nil
}
