package commands

import (
	"fmt"
	"path/filepath"

	"github.com/mosaicnetworks/graphshare/src/config"
	"github.com/mosaicnetworks/graphshare/src/net/signal/wamp"
	"github.com/spf13/cobra"
)

var (
	signalAddr  string
	signalRealm string
	certFile    string
	keyFile     string
)

//NewSignalCmd returns the command that runs a WebRTC signaling server
func NewSignalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "WebRTC signaling server using WebSockets",
		RunE:  runSignal,
	}
	AddSignalFlags(cmd)
	return cmd
}

//AddSignalFlags adds flags to the signal command
func AddSignalFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&signalAddr, "listen", "l", config.DefaultSignalAddr, "Listen IP:Port of the signaling server")
	cmd.Flags().StringVar(&signalRealm, "realm", config.DefaultSignalRealm, "Administrative routing domain")
	cmd.Flags().StringVar(&certFile, "cert-file", filepath.Join(_config.Graphshare.DataDir, config.DefaultCertFile), "File containing the TLS certificate")
	cmd.Flags().StringVar(&keyFile, "key-file", filepath.Join(_config.Graphshare.DataDir, "key.pem"), "File containing the TLS private key")
}

// runSignal starts the WAMP server and waits for a SIGINT or SIGTERM
func runSignal(cmd *cobra.Command, args []string) error {
	logger := _config.Graphshare.Logger().WithField("prefix", "signal")

	server, err := wamp.NewServer(signalAddr, signalRealm, certFile, keyFile, logger)
	if err != nil {
		return err
	}

	if err := server.Listen(); err != nil {
		return err
	}

	fmt.Printf("Signaling on: %s\n", server.Addr())

	go server.Run()

	waitForSignal()

	server.Shutdown()

	return nil
}
