package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fly-io/gpsdl/internal/config"
	"github.com/fly-io/gpsdl/pkg/db"
	"github.com/fly-io/gpsdl/pkg/errors"
	"github.com/fly-io/gpsdl/pkg/fetch"
	appfsm "github.com/fly-io/gpsdl/pkg/fsm"
	"github.com/fly-io/gpsdl/pkg/gpstask"
	"github.com/fly-io/gpsdl/pkg/security"
	"github.com/fly-io/gpsdl/pkg/storage"
	"github.com/fly-io/gpsdl/pkg/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/superfly/fsm"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM database directory (only needed for downloads)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	return nil
}

// setupLogger installs the default logger from the log-file and log-level settings
func setupLogger(cmd *cobra.Command, args []string) error {
	cfg := config.Config{LogLevel: viper.GetString("log-level")}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}

	logFile := viper.GetString("log-file")
	if logFile == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, opts)))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return errors.Wrap(err, "failed to create log directory")
	}
	var w io.Writer = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	return cfg, nil
}

// runDownload loads the saved session, runs one download through the FSM,
// and prints the resulting layers.
func runDownload(ctx context.Context, req *appfsm.DownloadRequest) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Ensure all necessary directories exist
	if err := ensureDirectories(cfg.SQLitePath, cfg.FSMDBPath); err != nil {
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

	timeout, _ := cfg.Timeout()
	validator := security.NewValidator(cfg.MaxDownloadSize)

	var objects fetch.ObjectOpener
	if s3Client, err := storage.NewClient(ctx, cfg.S3Region); err != nil {
		slog.Warn("s3_unavailable", "error", err)
	} else {
		objects = s3Client
	}
	fetcher := fetch.NewClient(cfg.APIURL, timeout, objects, validator)

	pool := worker.NewPool(cfg.Workers, cfg.Workers)
	defer pool.Shutdown()

	integrator := gpstask.NewIntegrator(registry, config.NewPreferences(nil))
	task := gpstask.New(fetcher, pool, integrator)

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return errors.Wrap(err, "FSM manager failed")
	}
	defer manager.Shutdown(10 * time.Second)

	machine := appfsm.NewMachine(repo, registry, task, cfg.FSMMaxRetries)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return errors.Wrap(err, "FSM register failed")
	}

	resp := &appfsm.DownloadResponse{}
	version, err := start(ctx, uuid.NewString(), fsm.NewRequest(req, resp))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "version", version, "source", req.Source, "bbox", req.BBox)

	if err := manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "download failed")
	}

	slog.Info("download_finished", "layers", len(registry.Layers()))

	records, err := repo.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list failed")
	}
	printRecords(records)
	return nil
}

func printRecords(records []*db.LayerRecord) {
	if len(records) == 0 {
		fmt.Println("No layers found")
		return
	}

	fmt.Printf("%-2s %-36s %-7s %-32s %-7s %-8s %-36s\n", "", "ID", "KIND", "NAME", "SOURCE", "POINTS", "FROM LAYER")
	fmt.Println("------------------------------------------------------------------------------------------------------------------------------")

	for _, rec := range records {
		active := ""
		if rec.Active {
			active = "*"
		}
		origin := "-"
		if rec.Kind == db.KindTrack {
			origin = "local"
			if rec.FromServer {
				origin = "server"
			}
		}
		fromLayer := rec.FromLayerID
		if fromLayer == "" {
			fromLayer = "-"
		}

		fmt.Printf("%-2s %-36s %-7s %-32s %-7s %-8d %-36s\n",
			active, rec.ID, rec.Kind, truncate(rec.Name, 32), origin, rec.PointCount, fromLayer)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
