package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PSyncProject/data/database/mgo/mongoutil"
	"PSyncProject/global/config"
	"PSyncProject/logger"
	"PSyncProject/module/sync/fanout"
	"PSyncProject/module/sync/model"
	"PSyncProject/module/sync/projector"
	"PSyncProject/module/sync/recovery"
	"PSyncProject/module/sync/stats"
	"PSyncProject/module/sync/store"
	"PSyncProject/module/sync/watcher"
	"PSyncProject/service/canonical"
	"PSyncProject/service/dispatcher"
	"PSyncProject/service/natsx"
	"PSyncProject/service/storage"
	"PSyncProject/tools/ids"
	"PSyncProject/tools/safe"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	config.LoadEnv()
	cfg := config.Global
	ids.SetNodeID(cfg.NodeID)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// read store
	mgo, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:         cfg.Mongo.Uri,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		AuthSource:  cfg.Mongo.AuthSource,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		MaxRetry:    cfg.Mongo.MaxRetry,
	})
	if err != nil {
		logger.Error("mongo init failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = mgo.Close(context.Background()) }()
	readStore := store.NewMongo(mgo.GetDB())

	// canonical store
	reader, err := canonical.NewPGReader(ctx, cfg.Postgres.Url)
	if err != nil {
		logger.Error("canonical store init failed", zap.Error(err))
		os.Exit(1)
	}
	defer reader.Close()

	// presence mirror (optional)
	var mirror fanout.PresenceMirror
	if rp, err := storage.NewRedisPresence(storage.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Sync.PresenceTTL); err != nil {
		logger.Warn("redis unavailable, presence mirror disabled", zap.Error(err))
	} else {
		mirror = rp
		defer rp.Close()
	}

	// fan-out
	pool := fanout.NewPool(cfg.Sync.FanoutWorkers, cfg.Sync.FanoutQueue)
	defer pool.Close()
	router := fanout.NewRouter(pool, mirror)

	// change feed -> bus + router (+ optional nats relay)
	bus := watcher.NewBus()
	sinks := []watcher.Sink{router}
	if cfg.Nats.Enabled {
		relay, err := natsx.NewRelay(cfg.Nats.Url, cfg.Nats.SubjectPrefix)
		if err != nil {
			logger.Warn("nats unavailable, change relay disabled", zap.Error(err))
		} else {
			sinks = append(sinks, relay)
			defer relay.Close()
			if _, err := relay.Subscribe(router.Publish); err != nil {
				logger.Warn("nats relay subscribe failed", zap.Error(err))
			}
		}
	}
	w := watcher.NewWatcher(mgo.GetDB(), bus, sinks...)
	if err := w.Start(ctx, cfg.Sync.WatchedColls); err != nil {
		logger.Error("change feed start failed", zap.Error(err))
		os.Exit(1)
	}
	defer w.Stop()

	// projection + recovery
	proj := projector.New(reader, readStore, readStore, cfg.Sync.TruncateErrLen)
	worker := recovery.NewWorker(proj, readStore,
		cfg.Sync.SweepInterval, cfg.Sync.BatchSize, cfg.Sync.MaxRetry)
	worker.Start(ctx)
	defer worker.Stop()

	// event dispatch
	disp := dispatcher.New()
	disp.Register(model.EventMessageCreated, proj.OnMessageCreated)
	disp.Register(model.EventMessageEdited, proj.OnMessageEdited)
	disp.Register(model.EventMessageDeleted, proj.OnMessageDeleted)
	consumer, err := dispatcher.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.EventTopics, disp)
	if err != nil {
		logger.Error("kafka init failed", zap.Error(err))
		os.Exit(1)
	}
	consumer.Start(ctx)
	defer func() { _ = consumer.Close() }()

	// status endpoint
	reporter := stats.NewReporter(w, router, readStore, readStore)
	engine := gin.Default()
	stats.RegisterRoutes(engine, reporter)
	safe.SafeGo("http", func() {
		if err := engine.Run(fmt.Sprintf(":%d", cfg.HTTPPort)); err != nil {
			logger.Error("http server stopped", zap.Error(err))
		}
	})

	logger.Infof("sync node up node_id=%d http_port=%d", cfg.NodeID, cfg.HTTPPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	cancel()
}
