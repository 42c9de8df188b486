package main

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simulator",
		Short: "Source routed drone network simulator",
		Long: `simulator runs a network of drones that forward packets along the hop
list chosen by their sender, answer failures with NACKs and take part in
flood based topology discovery. Scenarios drive the network from its
client and server endpoints.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	return root
}

func main() {
	log.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.StampMicro,
	})
	log.SetOutput(os.Stdout)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
