package commands

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mosaicnetworks/graphshare/src/graphshare"
	"github.com/spf13/cobra"
)

//NewJoinCmd returns the command that mirrors the graph of a host
func NewJoinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "join [host-id]",
		Short:   "Mirror the graph of a host",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfig,
		RunE:    runJoin,
	}
	AddJoinFlags(cmd)
	return cmd
}

func runJoin(cmd *cobra.Command, args []string) error {
	engine := graphshare.NewGraphshare(&_config.Graphshare)

	if err := engine.Init(); err != nil {
		_config.Graphshare.Logger().Error("Cannot initialize engine:", err)
		return err
	}
	defer engine.Shutdown()

	if err := engine.RunGuest(context.Background(), args[0]); err != nil {
		return err
	}

	if _config.Fetch != "" {
		return fetch(engine)
	}

	fmt.Printf("Connected to: %s\n", args[0])

	waitForSignal()

	return nil
}

// fetch downloads one asset and writes it to --out, or to stdout
func fetch(engine *graphshare.Graphshare) error {
	f, err := engine.Guest.FetchFile(context.Background(), _config.Fetch)
	if err != nil {
		return fmt.Errorf("Fetching %s: %w", _config.Fetch, err)
	}

	if _config.Out == "" {
		_, err := os.Stdout.Write(f.Data)
		return err
	}

	if err := ioutil.WriteFile(_config.Out, f.Data, 0644); err != nil {
		return fmt.Errorf("Writing %s: %w", _config.Out, err)
	}

	fmt.Fprintf(os.Stderr, "Saved %s (%s, %s) to %s\n",
		f.Path, f.MIME, humanize.Bytes(uint64(len(f.Data))), _config.Out)

	return nil
}

//AddJoinFlags adds flags to the join command
func AddJoinFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)

	cmd.Flags().DurationP("connect-timeout", "t", _config.Graphshare.ConnectTimeout, "Timeout for connecting to the host")
	cmd.Flags().Duration("request-timeout", _config.Graphshare.RequestTimeout, "Timeout of file requests")

	cmd.Flags().String("fetch", "", "Fetch this asset from the host and exit")
	cmd.Flags().StringP("out", "o", "", "File where the fetched asset is written; defaults to stdout")
}
