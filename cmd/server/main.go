package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/jperram92/dograh/internal/campaign"
	"github.com/jperram92/dograh/internal/handler"
	"github.com/jperram92/dograh/internal/pipeline"
	"github.com/jperram92/dograh/internal/repository"
	"github.com/jperram92/dograh/internal/services/call"
	"github.com/jperram92/dograh/internal/telephony"
	"github.com/jperram92/dograh/pkg/logger"
	"github.com/jperram92/dograh/pkg/redis"
	"github.com/jperram92/dograh/pkg/tunnel"
	"go.uber.org/zap"
)

// ServerConfig holds the telephony gateway server configuration.
type ServerConfig struct {
	Port          string
	SessionSecret string
}

// Server is the telephony gateway HTTP server.
type Server struct {
	config *ServerConfig
	router *mux.Router
}

// NewServer builds the server: repositories, campaign collaborators, provider
// factory, call service and routes.
func NewServer(cfg *ServerConfig) *Server {
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("failed to initialize zap logger, falling back to std log")
	}

	repoManager, err := repository.NewRepositoryManager()
	if err != nil {
		logger.Base().Error("failed to connect to database", zap.Error(err))
		return nil
	}

	// Redis backs the campaign dialing slot dispatcher. The gateway still
	// serves non-campaign calls without it.
	var dispatcher campaign.Dispatcher
	redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
		Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
		Port:     getEnvOrDefault("REDIS_PORT", "6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       0,
	})
	if err != nil {
		logger.Base().Warn("failed to initialize redis, campaign slot release disabled", zap.Error(err))
	} else {
		dispatcher = campaign.NewRedisDispatcher(redisSvc)
	}

	// Pub/Sub backs the campaign event publisher, likewise optional.
	var publisher campaign.EventPublisher
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		pubsubPublisher, err := campaign.NewPubSubPublisher(context.Background(), &campaign.PubSubConfig{
			ProjectID: projectID,
			TopicName: getEnvOrDefault("CAMPAIGN_EVENT_TOPIC", "campaign-events"),
		})
		if err != nil {
			logger.Base().Warn("failed to initialize pubsub, campaign events disabled", zap.Error(err))
		} else {
			publisher = pubsubPublisher
		}
	} else {
		logger.Base().Info("PUBSUB_PROJECT_ID not set, campaign events disabled")
	}

	tunnelProvider := tunnel.NewEnvProvider()
	providerFactory := telephony.NewFactory(repoManager.OrganizationConfiguration(), tunnelProvider)

	callService := call.NewService(
		providerFactory,
		repoManager.Workflow(),
		repoManager.WorkflowRun(),
		repoManager.UserConfiguration(),
		dispatcher,
		publisher,
		tunnelProvider,
	)

	router := mux.NewRouter()
	handlerManager := handler.NewHandlerManager(
		callService,
		providerFactory,
		pipeline.NewDrainRunner(),
		repoManager,
		cfg.SessionSecret,
	)
	handlerManager.SetupAllRoutes(router)

	return &Server{config: cfg, router: router}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("starting telephony gateway", zap.String("addr", addr))
	return server.ListenAndServe()
}

// LoadConfigFromEnv loads server configuration from the environment.
func LoadConfigFromEnv() *ServerConfig {
	return &ServerConfig{
		Port:          getEnvOrDefault("TELEPHONY_PORT", "8080"),
		SessionSecret: os.Getenv("SECRET_KEY"),
	}
}

// getEnvOrDefault gets an environment variable or returns the default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// .env is for local development; deployed environments inject real env vars.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := LoadConfigFromEnv()

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("failed to create server")
	}
	logger.Base().Info("server initialized", zap.String("port", cfg.Port))

	if err := server.Start(); err != nil {
		log.Fatalf("server failed to start: %v", err)
	}
}
