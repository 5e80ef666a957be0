package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// 构建时注入
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rf24d",
		Short: "Half-duplex RF24 radio gateway",
		Long: `rf24d drives an nRF24L01-class transceiver in half-duplex mode.

A reader loop polls the radio for inbound frames and dispatches them to
subscribers; a writer loop pauses the reader, drains the outbound queue
and hands the radio back. Status, commands and reconfiguration are
exposed over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		encodeCmd(),
		decodeCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
