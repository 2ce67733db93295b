package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/timtuun/pygeoapi/internal/config"
	"github.com/timtuun/pygeoapi/internal/logger"
	"github.com/timtuun/pygeoapi/internal/observability"
	"github.com/timtuun/pygeoapi/internal/provider/mongodb"
	"github.com/timtuun/pygeoapi/internal/router"
	"github.com/timtuun/pygeoapi/internal/server"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

type mongoPinger struct {
	cli *mongo.Client
}

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.cli.Ping(ctx, readpref.Primary())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "featureserver",
	}, os.Stdout)

	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting feature server",
		"addr", cfg.Addr,
		"version", Version,
		"database", cfg.MongoDatabase,
		"collection", cfg.MongoCollection,
		"datetime_field", cfg.DatetimeField)

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		appLog.Error("mongo connect failed", "err", err)
		return 1
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		appLog.Error("mongo ping failed", "err", err)
		return 1
	}

	col := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)

	// spatial containment queries need a geosphere index; best effort,
	// a failure here only degrades bbox queries
	_, err = col.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys: bson.D{{Key: "geometry", Value: "2dsphere"}},
	})
	if err != nil {
		appLog.Warn("geometry index creation failed", "err", err)
	}

	prov := mongodb.New(col, mongodb.Config{
		DatetimeField: cfg.DatetimeField,
		Logger:        zl,
	})

	h := router.New(prov, appLog, cfg.DefaultLimit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, appLog, h, mongoPinger{cli: client}); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
