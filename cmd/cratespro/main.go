// Command cratespro runs the supply-chain observatory: the import pipeline,
// the analysis bridge, the packaging task, and the read API.
package main

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quay/zlog"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crates-pro/crates-pro/analysis"
	"github.com/crates-pro/crates-pro/controller"
	"github.com/crates-pro/crates-pro/datastore/postgres"
	"github.com/crates-pro/crates-pro/graph"
	"github.com/crates-pro/crates-pro/graph/neo4jstore"
	"github.com/crates-pro/crates-pro/httptransport"
	"github.com/crates-pro/crates-pro/internal/config"
	"github.com/crates-pro/crates-pro/internal/workspace"
	"github.com/crates-pro/crates-pro/queue"
	"github.com/crates-pro/crates-pro/views"
)

func main() {
	ctx := context.Background()
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().
		Logger()
	zlog.Set(&log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Msgf("failed to load config: %v", err)
	}

	db, err := postgres.InitPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Msgf("failed to initialize relational store: %v", err)
	}
	defer db.Close()

	gstore, err := neo4jstore.Connect(ctx, cfg.BoltURL, cfg.BoltUser, cfg.BoltPassword, cfg.BoltDatabase)
	if err != nil {
		log.Fatal().Msgf("failed to connect graph store: %v", err)
	}
	defer gstore.Close(ctx)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
	}

	if cfg.ResetKafkaOffset {
		if err := queue.ResetOffsets(ctx, cfg.KafkaBrokers[0], cfg.KafkaGroupID, cfg.MainTopic); err != nil {
			log.Fatal().Msgf("failed to reset offsets: %v", err)
		}
	}

	var consumer *queue.Consumer
	if cfg.Import {
		consumer = queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.MainTopic)
		defer consumer.Close()
	}
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.AnalysisTopic)
	defer producer.Close()
	dispatcher := analysis.NewDispatcher(producer, db)

	var results *analysis.ResultConsumer
	if cfg.Analysis {
		results = analysis.NewResultConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.AnalysisTopic, db)
		defer results.Close()
	}

	ws := workspace.New(cfg.RepoBaseDir)
	writer := graph.NewWriter(gstore)
	viewsSvc := views.New(gstore, db, rdb)

	ctl := controller.New(cfg, consumer, results, dispatcher, ws, writer, db, cfg.MegaBaseURL)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", nil); err != nil {
			zlog.Warn(ctx).Err(err).Msg("metrics listener stopped")
		}
	}()

	if cfg.Package {
		// The API serves alongside the packaging task.
		api := httptransport.New(viewsSvc, db, nil)
		go func() {
			if err := api.Serve(ctx, cfg.ListenAddr); err != nil {
				zlog.Error(ctx).Err(err).Msg("api server stopped")
			}
		}()
	}

	if err := ctl.Run(ctx); err != nil {
		log.Fatal().Msgf("controller exited: %v", err)
	}
}
