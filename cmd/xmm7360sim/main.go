// xmm7360sim serves a canned modem double over TCP, for developing against
// the client stack without hardware.
package main

import (
	"fmt"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/augustjohansson/xmm7360-pci/messages"
	"github.com/augustjohansson/xmm7360-pci/sim"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("xmm7360sim", pflag.ContinueOnError)
	listen := flagSet.String("listen", "127.0.0.1:7360", "address to serve on")
	tablePath := flagSet.String("table", "", "command table file, .json or .toml")
	logLevel := flagSet.String("log-level", "debug", "log level")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		return fmt.Errorf("log level %q not known", *logLevel)
	}
	log.SetLevel(level)

	if *tablePath == "" {
		return fmt.Errorf("a command table is required (--table)")
	}
	table, err := messages.LoadTable(*tablePath)
	if err != nil {
		return err
	}

	l, err := net.Listen("tcp", *listen)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"addr": l.Addr().String(),
	}).Info("serving")
	return sim.New(table).Serve(l)
}
