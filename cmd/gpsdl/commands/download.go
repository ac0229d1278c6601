package commands

import (
	"os"
	"os/signal"
	"syscall"

	appfsm "github.com/fly-io/gpsdl/pkg/fsm"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download --bbox <minlon,minlat,maxlon,maxlat>",
	Short: "Download public GPS trackpoints inside a bounding box",
	Args:  cobra.NoArgs,
	RunE:  runDownloadBBox,
}

func init() {
	downloadCmd.Flags().String("bbox", "", "Bounding box as minlon,minlat,maxlon,maxlat")
	downloadCmd.MarkFlagRequired("bbox")
	addDownloadFlags(downloadCmd)
	rootCmd.AddCommand(downloadCmd)
}

func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("new-layer", false, "Always create a new layer instead of merging")
	cmd.Flags().Bool("zoom", false, "Zoom the viewport to the downloaded data")
}

func downloadRequest(cmd *cobra.Command) *appfsm.DownloadRequest {
	newLayer, _ := cmd.Flags().GetBool("new-layer")
	zoom, _ := cmd.Flags().GetBool("zoom")
	return &appfsm.DownloadRequest{NewLayer: newLayer, ZoomAfterDownload: zoom}
}

func runDownloadBBox(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := downloadRequest(cmd)
	req.BBox, _ = cmd.Flags().GetString("bbox")
	return runDownload(ctx, req)
}
