package main

import (
	"fmt"
	"io"
	"os"

	config "github.com/aditiharini/drone-simulator/config/simulator"
	"github.com/aditiharini/drone-simulator/controller"
	"github.com/aditiharini/drone-simulator/network"
	"github.com/aditiharini/drone-simulator/scenario"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runOptions struct {
	configFile   string
	scenarioFile string
	captureFile  string
	verbose      bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario on a topology",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "topology.yaml", "topology and general configuration")
	cmd.Flags().StringVarP(&opts.scenarioFile, "scenario", "s", "", "scenario script, one logfmt record per line")
	cmd.Flags().StringVar(&opts.captureFile, "capture", "", "write every telemetry event to this pcap file")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	cmd.MarkFlagRequired("scenario")
	return cmd
}

func setLogLevel(general config.GeneralConfig, verbose bool) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
		return nil
	}
	if general.LogLevel == "" {
		return nil
	}
	level, err := log.ParseLevel(general.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	log.SetLevel(level)
	return nil
}

func runScenario(opts runOptions, out io.Writer) error {
	c, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if err := setLogLevel(c.General, opts.verbose); err != nil {
		return err
	}

	scenarioFile, err := os.Open(opts.scenarioFile)
	if err != nil {
		return fmt.Errorf("open scenario: %w", err)
	}
	steps, err := scenario.Parse(scenarioFile)
	scenarioFile.Close()
	if err != nil {
		return err
	}

	n, err := network.New(c)
	if err != nil {
		return err
	}

	if opts.captureFile != "" {
		f, err := os.Create(opts.captureFile)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer f.Close()
		capture, err := controller.NewCapture(f)
		if err != nil {
			return err
		}
		n.Controller().SetCapture(capture)
	}

	n.Start()
	result, runErr := scenario.Run(n, steps)
	n.Stop()

	for _, id := range n.Endpoints() {
		for _, p := range result.Received[id] {
			fmt.Fprintf(out, "received at %d: %s\n", id, p)
		}
	}
	printStats(out, n)
	return runErr
}

func printStats(out io.Writer, n *network.Network) {
	stats := n.Stats()
	for _, id := range n.Drones() {
		s := stats[id]
		fmt.Fprintf(out, "drone %d: sent=%d dropped=%d shortcuts=%d\n", id, s.Sent, s.Dropped, s.Shortcuts)
	}
}
