// Command cadsync extracts the blocks-and-parcels layer from the central
// catalog into a local shapefile container and reconciles it against the
// GIS-hosted destination table.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cadsync/internal/audit"
	"cadsync/internal/catalog"
	"cadsync/internal/config"
	"cadsync/internal/container"
	"cadsync/internal/database"
	"cadsync/internal/gis"
	syncer "cadsync/internal/sync"
)

type options struct {
	skipExtract bool
	writeAudit  bool
	verbose     bool
	outDir      string
	schema      string
	table       string
	configPath  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "cadsync",
		Short: "Sync the blocks-and-parcels layer from the central catalog to the GIS database",
		Long: `cadsync runs two stages: it extracts the active blocks-and-parcels records
from the central catalog into a local shapefile container, then reconciles
that snapshot against the destination table by (block, parcel, suffix) key.
With --skip-extract only the reconciliation stage runs, against the container
left behind by a previous extraction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.skipExtract, "skip-extract", false, "skip extraction and reconcile the existing container")
	cmd.Flags().BoolVar(&opts.writeAudit, "audit", false, "record the run summary in the enterprise database")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "directory for the shapefile container (default from config)")
	cmd.Flags().StringVar(&opts.schema, "schema", "", "destination schema name (default from config)")
	cmd.Flags().StringVar(&opts.table, "table", "", "destination table name (default from config)")
	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to cadsync.yaml")

	return cmd
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outDir != "" {
		cfg.OutDir = opts.outDir
	}
	if opts.schema != "" {
		cfg.Schema = opts.schema
	}
	if opts.table != "" {
		cfg.Table = opts.table
	}

	log, err := newLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	extractSkipped := 0
	if !opts.skipExtract {
		extractSkipped, err = extract(ctx, cfg, log)
		if err != nil {
			log.Error("extraction failed", zap.Error(err))
			return err
		}
	}

	res, err := reconcile(ctx, cfg, log)
	if err != nil {
		log.Error("reconciliation failed", zap.Error(err))
		return err
	}

	if opts.writeAudit {
		if cfg.Enterprise.Host == "" {
			log.Warn("audit requested but no enterprise database configured")
		} else if err := recordAudit(ctx, cfg, res, extractSkipped, log); err != nil {
			// The sync itself already happened; a missing audit row is not
			// worth a non-zero exit.
			log.Warn("audit record failed", zap.Error(err))
		}
	}

	return nil
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// extract runs stage one: catalog query to shapefile container. It returns
// how many source rows were skipped for bad payloads or geometry.
func extract(ctx context.Context, cfg config.Config, log *zap.Logger) (int, error) {
	conn, err := database.Connect(ctx, database.KindCatalog, cfg.Catalog, log)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	pool, err := conn.Querier()
	if err != nil {
		return 0, err
	}

	parcels, skipped, err := catalog.NewExtractor(pool, log).Extract(ctx)
	if err != nil {
		return skipped, err
	}

	w, err := container.Create(cfg.OutDir)
	if err != nil {
		return skipped, err
	}
	defer w.Close()

	for _, p := range parcels {
		if err := w.Append(p); err != nil {
			skipped++
			log.Warn("skipping record the container rejected",
				zap.Stringer("key", p.Key()), zap.Error(err))
		}
	}
	log.Info("container written",
		zap.String("path", w.Path()), zap.Int("records", w.Count()))
	return skipped, nil
}

// reconcile runs stage two: container snapshot against the destination table.
func reconcile(ctx context.Context, cfg config.Config, log *zap.Logger) (syncer.Result, error) {
	path := filepath.Join(cfg.OutDir, container.LayerName+".shp")
	source, skipped, err := container.Read(path, log)
	if err != nil {
		return syncer.Result{}, err
	}
	if skipped > 0 {
		log.Warn("container rows skipped on read", zap.Int("skipped", skipped))
	}

	conn, err := database.Connect(ctx, database.KindGIS, cfg.GIS, log)
	if err != nil {
		return syncer.Result{}, err
	}
	defer conn.Close()

	pool, err := conn.Querier()
	if err != nil {
		return syncer.Result{}, err
	}

	store := gis.NewStore(pool, cfg.Schema, cfg.Table, log)
	if err := store.EnsureTable(ctx); err != nil {
		return syncer.Result{}, err
	}

	return syncer.Reconcile(ctx, source, store, log)
}

func recordAudit(ctx context.Context, cfg config.Config, res syncer.Result, skipped int, log *zap.Logger) error {
	conn, err := database.Connect(ctx, database.KindEnterprise, cfg.Enterprise, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	db, err := conn.Execer()
	if err != nil {
		return err
	}

	return audit.NewRecorder(db, log).Record(ctx, audit.Summary{
		RunAt:     time.Now().UTC(),
		Schema:    cfg.Schema,
		Table:     cfg.Table,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Deleted:   res.Deleted,
		Skipped:   skipped,
	})
}
