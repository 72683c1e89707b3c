package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"livechat-console/internal/api"
	"livechat-console/internal/chat"
	"livechat-console/internal/config"
	"livechat-console/internal/delivery"
	"livechat-console/internal/domain"
	"livechat-console/internal/infrastructure/kafka"
	"livechat-console/internal/infrastructure/redis"
	"livechat-console/internal/logger"
	"livechat-console/internal/transport"
)

func main() {
	// Global recovery to avoid crashing without a log line
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Application recovered from panic: %v", r)
			os.Exit(1)
		}
	}()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}); err != nil {
		logrus.Fatalf("Invalid logging configuration: %v", err)
	}
	log := logger.Get("main")

	log.Info("Starting LiveChat console")
	log.Infof("Role: %s", cfg.Role)
	log.Infof("Environment: %s", cfg.Environment)
	log.Infof("Port: %s", cfg.Port)
	log.Infof("Backend: %s (ws %s)", cfg.APIBaseURL, cfg.WSBaseURL)
	log.Infof("Kafka Brokers: %v", cfg.KafkaBrokers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apiClient := api.NewClient(api.Options{
		BaseURL:      cfg.APIBaseURL,
		Token:        cfg.APIToken,
		Timeout:      cfg.HTTPTimeout,
		HistoryLimit: cfg.HistoryLimit,
	})

	// The guest session id lives in Redis when it is reachable so a
	// restarted widget resumes its conversation.
	var store chat.SessionStore = chat.NewMemoryStore("")
	var redisClient *redis.RedisClient
	if cfg.Role == string(domain.RoleCustomer) {
		redisClient = redis.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
		if err := redisClient.Ping(ctx); err != nil {
			log.WithError(err).Warn("Redis connection failed, session id will not survive restarts")
		} else {
			log.Info("Redis connection successful")
			store = redis.NewSessionStore(redisClient, cfg.ClientKey, 0)
		}
	}

	manager := transport.NewManager(transport.Config{
		BaseURL: cfg.WSBaseURL,
		OnOpen: func(role domain.Role) {
			log.WithField("role", role).Info("Backend channel open")
		},
		OnClose: func(role domain.Role) {
			log.WithField("role", role).Warn("Backend channel closed")
		},
	}, store)

	var (
		producer *kafka.KafkaProducer
		consumer *kafka.KafkaConsumer
	)
	opts := chat.Options{FeedbackDelay: cfg.FeedbackDelay}
	if cfg.KafkaEnabled() {
		producer = kafka.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		opts.Sink = producer
	}

	hub := delivery.NewHub()
	go hub.Run(ctx)

	var (
		routes delivery.Routes
		stop   func()
	)
	switch domain.Role(cfg.Role) {
	case domain.RoleAdmin:
		console := chat.NewAdminConsole(apiClient, manager, opts)
		console.Subscribe(func(s chat.AdminSnapshot) { hub.Publish(s) })
		routes = delivery.NewAdminHandler(console)
		stop = console.Stop

		if cfg.KafkaEnabled() && cfg.KafkaFeedTopic != "" {
			consumer = kafka.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaFeedTopic, console)
			consumer.Start(ctx)
		}
		if err := console.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start admin console")
		}

	case domain.RoleCustomer:
		widget := chat.NewCustomerChat(apiClient, manager, store, opts)
		widget.Subscribe(func(s chat.CustomerSnapshot) { hub.Publish(s) })
		routes = delivery.NewCustomerHandler(widget)
		stop = widget.Stop

		go func() {
			if err := widget.Start(ctx); err != nil {
				log.WithError(err).Error("Failed to start chat widget")
			}
		}()
	}

	server := delivery.NewServer(cfg, hub, routes)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down...")
		cancel()
		if stop != nil {
			stop()
		}
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				log.WithError(err).Error("Error closing Kafka consumer")
			}
		}
		if producer != nil {
			if err := producer.Close(); err != nil {
				log.WithError(err).Error("Error closing Kafka producer")
			}
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.WithError(err).Error("Error closing Redis client")
			}
		}
		if err := apiClient.Close(); err != nil {
			log.WithError(err).Error("Error closing API client")
		}
		if err := server.Shutdown(); err != nil {
			log.WithError(err).Error("Error shutting down server")
		}
	}()

	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}
