package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/source"
	"github.com/spf13/cobra"
)

var loadURLCmd = &cobra.Command{
	Use:   "load-url <url>",
	Short: "Download a GPS trace from an OSM trace link, API URL, or GPX file URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadURL,
}

func init() {
	addDownloadFlags(loadURLCmd)
	rootCmd.AddCommand(loadURLCmd)
}

func runLoadURL(cmd *cobra.Command, args []string) error {
	url := args[0]

	// Reject before touching the session or the FSM store.
	if _, ok := source.Resolve(url); !ok {
		return errors.Wrap(errors.ErrUnrecognizedSource, url)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := downloadRequest(cmd)
	req.Source = url
	return runDownload(ctx, req)
}
