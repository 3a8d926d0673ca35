package main

import (
	"context"
	"log"
	"os"
	"time"

	"resolvego/internal/ai"
	"resolvego/internal/api"
	"resolvego/internal/auth"
	"resolvego/internal/config"
	"resolvego/internal/redis"
	"resolvego/internal/service/inquiry"
	"resolvego/internal/storage"
	"resolvego/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("RESOLVEGO_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("RESOLVEGO_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	defer rdb.Close()

	// Create necessary tables: users, inquiries, messages, user_tokens
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	aiClient, err := ai.NewClient(context.Background(), cfg)
	if err != nil {
		log.Fatalf("init ai client: %v", err)
	}

	inquiryService := inquiry.NewService(db)
	orchestrator := inquiry.NewOrchestrator(inquiryService, aiClient, aiClient)

	manager := worker.NewManager(orchestrator, inquiryService, rdb)
	idleTimeout := time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute
	dispatcher := worker.NewDispatcher(
		cfg.BasicConfig.MinWorkers,
		cfg.BasicConfig.MaxWorkers,
		cfg.BasicConfig.QueueSize,
		manager,
		idleTimeout,
	)

	authService := auth.NewService(db, rdb, 24*time.Hour)
	cleanCtx, cleanCancel := context.WithCancel(context.Background())
	defer cleanCancel()
	authService.StartTokenCleaner(cleanCtx, time.Hour)

	issueTTL := time.Duration(cfg.BasicConfig.IssueCacheTTL) * time.Minute
	if issueTTL <= 0 {
		issueTTL = 10 * time.Minute
	}
	handlers := api.NewHandler(inquiryService, aiClient, authService, dispatcher, rdb, issueTTL)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
