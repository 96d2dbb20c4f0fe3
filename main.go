package main

import (
	"context"
	"log"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"
	"VideoFactory-server/models"
	"VideoFactory-server/routers"
	"VideoFactory-server/routers/api"
	"VideoFactory-server/service"

	"gorm.io/gorm"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig

	lg, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		log.Fatalf("could not init logger: %v", err)
	}
	defer lg.Sync()
	lg.Info("server starting", "port", cfg.Server.Port)

	ctx := context.Background()

	var db *gorm.DB
	if cfg.MySQL.DSN != "" {
		db, err = models.OpenMySQL(cfg.MySQL.DSN)
	} else {
		lg.Warn("no mysql dsn configured, using sqlite", "path", cfg.SQLite.Path)
		db, err = models.OpenSQLite(cfg.SQLite.Path)
	}
	if err != nil {
		lg.Fatal("database init failed", "error", err)
	}
	store := models.NewStore(db)
	lg.Info("database initialized")

	var (
		uploader service.Uploader
		mirror   service.AssetMirror
	)
	if cfg.MinIO.Endpoint != "" {
		objects, err := service.NewObjectStore(ctx, *cfg, lg)
		if err != nil {
			lg.Fatal("minio init failed", "error", err)
		}
		uploader = objects
		if cfg.MinIO.MirrorOutputs {
			mirror = objects
		}
		lg.Info("minio initialized")
	}

	activity := service.NewStoreActivitySink(store, lg)
	registry := service.NewRegistry(store, lg, service.BuildAdapters(cfg.Providers, uploader, lg)...)
	if err := registry.Seed(ctx, cfg.Providers); err != nil {
		lg.Fatal("provider seed failed", "error", err)
	}

	var switches service.SwitchStore
	switch cfg.Control.Backend {
	case "memory":
		switches = service.NewMemorySwitchStore()
	default:
		rs, err := service.NewRedisSwitchStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Control.Prefix, lg)
		if err != nil {
			lg.Fatal("control plane init failed", "error", err)
		}
		defer rs.Close()
		switches = rs
	}
	oracle := service.NewControlPlane(switches, registry)

	cancels := service.NewCancelRegistry()
	fallback := service.NewFallbackRunner(registry, activity, lg, cfg.Pipeline)
	scenes := service.NewSceneRunner(store, fallback, activity, mirror, lg)
	assembler := service.NewAssembler(store, service.NewRenderBackend(cfg.Render, lg), activity, mirror, lg, cfg.Render, cfg.Pipeline)
	orchestrator := service.NewOrchestrator(store, scenes, assembler, oracle, cancels, activity, lg)

	var dispatcher service.Dispatcher
	switch cfg.Queue.Mode {
	case "local":
		dispatcher = service.NewLocalDispatcher(ctx, orchestrator, lg)
	default:
		queue := service.NewAsynqDispatcher(cfg.Redis.Addr, cfg.Redis.Password, lg)
		defer queue.Close()
		dispatcher = queue

		processor := service.NewProcessor(orchestrator, lg)
		processor.StartProcessor(cfg.Redis.Addr, cfg.Redis.Password, cfg.Queue.Concurrency)
		defer processor.Shutdown()
		lg.Info("queue initialized", "concurrency", cfg.Queue.Concurrency)
	}

	studio := service.NewStudio(store, dispatcher, cancels, switches, oracle, activity, lg)
	r := routers.InitRouter(api.NewHandler(studio, lg))
	if err := r.Run(cfg.Server.Port); err != nil {
		lg.Error("server stopped", "error", err)
	}
}
