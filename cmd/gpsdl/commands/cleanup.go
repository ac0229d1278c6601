package commands

import (
	"fmt"
	"os"

	"github.com/fly-io/gpsdl/pkg/db"
	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/layer"
	"github.com/spf13/cobra"
)

var (
	cleanupAll      bool
	cleanupLayer    string
	cleanupOrphaned bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove saved layers and download state",
	Long: `Clean up saved session state:
  --all              Remove all layers and the FSM store
  --layer <id>       Remove one layer and the markers paired with it
  --orphaned         Remove marker layers whose track layer is gone`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove everything")
	cleanupCmd.Flags().StringVar(&cleanupLayer, "layer", "", "Remove a specific layer by ID")
	cleanupCmd.Flags().BoolVar(&cleanupOrphaned, "orphaned", false, "Remove orphaned marker layers")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

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

	var removed int
	switch {
	case cleanupAll:
		removed = removeAll(registry)
		if err := os.RemoveAll(cfg.FSMDBPath); err != nil {
			return errors.Wrap(err, "failed to remove FSM store")
		}
	case cleanupLayer != "":
		if !registry.RemoveLayer(cleanupLayer) {
			return fmt.Errorf("layer not found: %s", cleanupLayer)
		}
		removed = 1 + removeOrphans(registry)
	case cleanupOrphaned:
		removed = removeOrphans(registry)
	default:
		return fmt.Errorf("must specify --all, --layer, or --orphaned")
	}

	if err := repo.SaveRegistry(ctx, registry); err != nil {
		return errors.Wrap(err, "session save failed")
	}

	fmt.Printf("Removed %d layer(s)\n", removed)
	return nil
}

func removeAll(registry *layer.Registry) int {
	n := 0
	for _, l := range registry.Layers() {
		if registry.RemoveLayer(l.ID()) {
			n++
		}
	}
	return n
}

func removeOrphans(registry *layer.Registry) int {
	n := 0
	for _, m := range registry.Orphans() {
		if registry.RemoveLayer(m.ID()) {
			fmt.Printf("Removed orphaned marker layer: %s (%s)\n", m.ID(), m.Name())
			n++
		}
	}
	return n
}
