package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cellkit/cellkit/internal/api"
	"github.com/cellkit/cellkit/internal/bundle"
	"github.com/cellkit/cellkit/internal/config"
	"github.com/cellkit/cellkit/internal/dist"
	"github.com/cellkit/cellkit/internal/plot"
	"github.com/cellkit/cellkit/internal/qc"
	"github.com/cellkit/cellkit/internal/qcstore"
	"github.com/cellkit/cellkit/internal/service"
)

// serveCmd runs the HTTP API server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve datasets, QC metrics and plots over HTTP",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("config", "config/cellkit.yaml", "Path to configuration file")
}

func runServe(cmd *cobra.Command, args []string) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting cellkit server on port %d", cfg.Server.Port)

	// Plot renderer is shared across all datasets.
	renderer := plot.NewRenderer(plot.Config{
		Width:           cfg.Plot.Width,
		Height:          cfg.Plot.Height,
		DefaultColormap: cfg.Plot.DefaultColormap,
	})

	qcOptions := qc.Options{
		ControlFeatures: cfg.QC.ControlFeatures,
		NMADs:           cfg.QC.NMADs,
	}

	datasetIDs := cfg.Data.DatasetIDs()
	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, datasetIDs, cfg.Server.Title)

	log.Printf("Initializing %d dataset(s), default: %s", len(datasetIDs), cfg.Data.DefaultDataset)

	for _, datasetID := range datasetIDs {
		ds := cfg.Data.Datasets[datasetID]

		reader, err := bundle.NewReader(ds.BundlePath, bundle.ReaderOptions{
			ChunkCacheSizeMB: cfg.Cache.ChunkCacheSizeMB,
		})
		if err != nil {
			log.Fatalf("Failed to open bundle for dataset %q: %v", datasetID, err)
		}

		set, err := reader.ExprSet()
		reader.Close()
		if err != nil {
			log.Fatalf("Failed to load dataset %q: %v", datasetID, err)
		}

		log.Printf("  [%s] Loaded from: %s", datasetID, ds.BundlePath)
		log.Printf("    Features: %d, Cells: %d, Counts: %v",
			set.NumFeatures(), set.NumCells(), set.HasCounts())

		// Distance matrices are cached per metric name, so each dataset
		// needs its own store.
		distances, err := dist.NewStore(cfg.Cache.DistanceCacheSize)
		if err != nil {
			log.Fatalf("Failed to initialize distance store for dataset %q: %v", datasetID, err)
		}

		svc, err := service.NewDatasetService(service.DatasetServiceConfig{
			DatasetID: datasetID,
			Set:       set,
			QCOptions: qcOptions,
			Renderer:  renderer,
			Distances: distances,
		})
		if err != nil {
			log.Fatalf("Failed to initialize dataset %q: %v", datasetID, err)
		}

		summary := svc.QCSummary()
		log.Printf("    Depth source: %s, flagged cells: %d", summary.DepthSource, summary.CellsFlagged)

		registry.Register(datasetID, svc)
	}

	// QC run store (SQLite persistence)
	store, err := qcstore.NewStore(cfg.Store.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize run store: %v", err)
	}
	defer store.Close()

	if n, err := store.DeleteExpiredRuns(cfg.Store.RetentionDays); err != nil {
		log.Printf("Run cleanup failed: %v", err)
	} else if n > 0 {
		log.Printf("Removed %d expired run(s)", n)
	}
	log.Printf("Run store: retention_days=%d, sqlite=%s", cfg.Store.RetentionDays, cfg.Store.DBPath)

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Store:       store,
		NMADs:       cfg.QC.NMADs,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
