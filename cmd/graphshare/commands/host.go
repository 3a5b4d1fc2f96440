package commands

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/graphshare/src/graphshare"
	"github.com/spf13/cobra"
)

//NewHostCmd returns the command that shares a graph with guests
func NewHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "host",
		Short:   "Share a graph with guests",
		PreRunE: loadConfig,
		RunE:    runHost,
	}
	AddHostFlags(cmd)
	return cmd
}

func runHost(cmd *cobra.Command, args []string) error {
	engine := graphshare.NewGraphshare(&_config.Graphshare)

	if err := engine.Init(); err != nil {
		_config.Graphshare.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), _config.Graphshare.ConnectTimeout)
	defer cancel()

	id, err := engine.RunHost(ctx)
	if err != nil {
		engine.Shutdown()
		return err
	}

	fmt.Printf("Hosting as: %s\n", id)

	waitForSignal()

	engine.Shutdown()

	return nil
}

//AddHostFlags adds flags to the host command
func AddHostFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)

	cmd.Flags().DurationP("connect-timeout", "t", _config.Graphshare.ConnectTimeout, "Timeout for registering with the transport")

	// Graph
	cmd.Flags().StringP("graph", "g", _config.Graphshare.GraphFile, "JSON graph file to share; changes are broadcast live")

	// Content
	cmd.Flags().StringP("content", "c", _config.Graphshare.ContentDir, "Directory of the assets served to guests")
	cmd.Flags().String("content-store", _config.Graphshare.ContentStore, "fs or badger")
	cmd.Flags().String("db", _config.Graphshare.DatabaseDir, "Badger database directory")
}
