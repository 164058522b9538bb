// Command peernode runs one federated chat node: identity, friend store,
// peer transport, directory client, delivery pipeline, local control
// plane, event bus, and scheduler.
package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "peernode",
		Short: "run a federated end-to-end encrypted chat node",
	}
	root.AddCommand(runCmd())

	if err := root.Execute(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "main",
			"error":    err.Error(),
		}).Fatal("peernode exited with error")
	}
}
