package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aditiharini/drone-simulator/controller"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "inspect <capture>",
		Aliases: []string{"i"},
		Short:   "Print the events stored in a capture file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open capture: %w", err)
			}
			defer f.Close()
			return inspect(f, cmd.OutOrStdout())
		},
	}
}

func inspect(r io.Reader, out io.Writer) error {
	records, err := controller.ReadCapture(r)
	for _, record := range records {
		fmt.Fprintf(out, "%s %s node=%d %s\n",
			record.Time.Format(time.StampMicro),
			record.Event.Type,
			record.Event.Node,
			record.Event.Packet,
		)
	}
	return err
}
