package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"

	"example.com/geolife/internal/config"
	"example.com/geolife/internal/domain"
	"example.com/geolife/internal/geolife"
	mongostore "example.com/geolife/internal/persistence/mongo"
	pgstore "example.com/geolife/internal/persistence/postgres"
	"example.com/geolife/internal/pipeline"
	"example.com/geolife/internal/report"
	httptransport "example.com/geolife/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on environment")
	}

	clean := flag.Bool("clean", true, "normalize trajectory files in place before ingestion")
	ingest := flag.Bool("ingest", true, "load users, activities and trackpoints into the backend")
	runReport := flag.Bool("report", true, "run the query battery and write the report")
	flag.Parse()

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsServer := httptransport.NewMetricsServer(cfg.MetricsAddress)
	go func() {
		log.Printf("metrics listening on %s", cfg.MetricsAddress)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	defer metricsServer.Close()

	sink, analytics, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s backend: %v", cfg.Backend, err)
	}
	defer func() {
		if err := sink.Close(context.Background()); err != nil {
			log.Printf("closing backend: %v", err)
		}
	}()

	if err := sink.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}

	cleaningCfg := geolife.CleaningConfig{
		MinAltitude:     cfg.MinAltitude,
		MaxAltitude:     cfg.MaxAltitude,
		InvalidAltitude: domain.InvalidAltitude,
		MaxTrackPoints:  cfg.MaxTrackPoints,
	}
	service := pipeline.New(sink, geolife.NewNormalizer(cleaningCfg, nil), cfg.DatasetPath, cfg.LabeledIDsPath, nil)

	if *clean {
		if _, err := service.Clean(ctx); err != nil {
			log.Fatalf("cleaning failed: %v", err)
		}
	}

	if *ingest {
		summary, err := service.Ingest(ctx)
		if err != nil {
			log.Fatalf("ingestion failed: %v", err)
		}
		log.Printf("ingested %d users, %d activities, %d trackpoints (%d rows skipped)",
			summary.Users, summary.Activities, summary.TrackPoints, summary.SkippedRows)
	}

	if *runReport {
		if err := writeReport(ctx, cfg, analytics); err != nil {
			log.Fatalf("report failed: %v", err)
		}
		log.Printf("report written to %s", cfg.ReportPath)
	}
}

func openBackend(ctx context.Context, cfg config.Config) (domain.Sink, domain.Analytics, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		repo := pgstore.NewRepository(pool, nil)
		return repo, repo, nil
	case config.BackendMongo:
		client, err := mongodriver.Connect(ctx, mongooptions.Client().ApplyURI(cfg.MongoURL))
		if err != nil {
			return nil, nil, err
		}
		repo := mongostore.NewRepository(client, cfg.MongoDatabase, nil)
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func writeReport(ctx context.Context, cfg config.Config, analytics domain.Analytics) error {
	reportCfg := report.DefaultConfig()
	reportCfg.FirstRowLimit = cfg.FirstRowLimit
	reportCfg.TopUserCount = cfg.TopUserCount
	reportCfg.WalkUserID = cfg.WalkUserID
	reportCfg.WalkYear = cfg.WalkYear

	file, err := os.Create(cfg.ReportPath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := report.NewWriter(analytics, reportCfg, nil)
	return writer.Write(ctx, file)
}
