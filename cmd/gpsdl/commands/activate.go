package commands

import (
	"fmt"
	"log/slog"

	"github.com/fly-io/gpsdl/pkg/db"
	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate <layer-id>",
	Short: "Make a saved layer the active layer, the first merge target for downloads",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureDirectories(cfg.SQLitePath, ""); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	registry, err := repo.LoadRegistry(ctx)
	if err != nil {
		return errors.Wrap(err, "session load failed")
	}
	if err := registry.SetActiveLayer(id); err != nil {
		return err
	}
	if err := repo.SaveRegistry(ctx, registry); err != nil {
		return errors.Wrap(err, "session save failed")
	}

	slog.Info("layer_activated", "layer_id", id)
	fmt.Printf("Active layer: %s\n", id)
	return nil
}
