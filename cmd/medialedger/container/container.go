package container

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/lyzr/medialedger/cmd/medialedger/handlers"
	"github.com/lyzr/medialedger/cmd/medialedger/repository"
	"github.com/lyzr/medialedger/cmd/medialedger/service"
	"github.com/lyzr/medialedger/common/bootstrap"
	"github.com/lyzr/medialedger/common/clients"
	"github.com/lyzr/medialedger/common/clock"
	rediscommon "github.com/lyzr/medialedger/common/redis"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	Store      clients.ObjectStore

	// Repositories
	AssetRepo *repository.AssetRepository

	// Services
	UploadService    *service.UploadService
	LifecycleService *service.LifecycleService
	ReclaimerService *service.ReclaimerService

	// Handlers
	UploadHandler      *handlers.UploadHandler
	AssetHandler       *handlers.AssetHandler
	MaintenanceHandler *handlers.MaintenanceHandler
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	// Create Redis client for the reclaimer's advisory lock
	redisRaw, err := createRedisClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	redisClient := rediscommon.NewClient(redisRaw, components.Logger)

	// Remote object store adapter
	store := clients.NewHTTPObjectStore(components.Config.Storage, components.Logger)

	// Initialize repositories
	assetRepo := repository.NewAssetRepository(components.DB)

	// Initialize services (bottom-up: dependencies first)
	clk := clock.System{}

	uploadService := service.NewUploadService(
		assetRepo,
		store,
		clk,
		components.Config.Retention,
		components.Telemetry,
		components.Logger,
	)

	lifecycleService := service.NewLifecycleService(
		assetRepo,
		store,
		clk,
		components.Cache,
		components.Logger,
	)

	reclaimerService := service.NewReclaimerService(
		assetRepo,
		store,
		redisClient,
		clk,
		components.Config.Retention,
		components.Telemetry,
		components.Logger,
	)

	return &Container{
		Components:         components,
		Redis:              redisClient,
		Store:              store,
		AssetRepo:          assetRepo,
		UploadService:      uploadService,
		LifecycleService:   lifecycleService,
		ReclaimerService:   reclaimerService,
		UploadHandler:      handlers.NewUploadHandler(components, uploadService),
		AssetHandler:       handlers.NewAssetHandler(components, lifecycleService),
		MaintenanceHandler: handlers.NewMaintenanceHandler(components, reclaimerService),
	}, nil
}

// createRedisClient creates a Redis client from environment variables
func createRedisClient() (*redis.Client, error) {
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password: redisPassword,
		DB:       0,
	})

	return client, nil
}

// getEnv gets an environment variable or returns a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
