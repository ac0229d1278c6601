package commands

import (
	"github.com/fly-io/gpsdl/pkg/db"
	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/spf13/cobra"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List the saved layers (* marks the active layer)",
	RunE:  runLayers,
}

func init() {
	rootCmd.AddCommand(layersCmd)
}

func runLayers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Ensure database directory exists
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	records, err := repo.List(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	printRecords(records)
	return nil
}
