package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/virtualbank/backend/docs"
	"github.com/virtualbank/backend/internal/config"
	"github.com/virtualbank/backend/internal/database"
	"github.com/virtualbank/backend/internal/events"
	"github.com/virtualbank/backend/internal/events/kafka"
	"github.com/virtualbank/backend/internal/handlers"
	"github.com/virtualbank/backend/internal/identity"
	"github.com/virtualbank/backend/internal/ledger"
	mW "github.com/virtualbank/backend/internal/middleware"
	"github.com/virtualbank/backend/internal/store"
)

// @title Virtual Bank Ledger API
// @version 1.0
// @description Per-user balances, transaction history and automatic account freezing
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	viper.BindEnv("kafka.topic", "KAFKA_TOPIC")

	viper.BindEnv("ledger.freeze_after", "LEDGER_FREEZE_AFTER")
	viper.BindEnv("ledger.max_conflict_retries", "LEDGER_MAX_CONFLICT_RETRIES")
	viper.BindEnv("ledger.append_retries", "LEDGER_APPEND_RETRIES")
	viper.BindEnv("ledger.retry_base_delay", "LEDGER_RETRY_BASE_DELAY")
	viper.BindEnv("ledger.retry_max_delay", "LEDGER_RETRY_MAX_DELAY")
	viper.BindEnv("ledger.reconcile_interval", "LEDGER_RECONCILE_INTERVAL")
	viper.BindEnv("ledger.reconcile_batch_size", "LEDGER_RECONCILE_BATCH_SIZE")

	viper.BindEnv("port", "PORT")
	viper.SetDefault("port", "8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	identityConfig := identity.LoadConfig()
	if len(identityConfig.SecretKey) == 0 {
		log.Fatal("jwt.secret_key must be set")
	}
	ledgerConfig := config.LoadLedgerConfig()

	docs.SwaggerInfo.Host = "localhost:" + viper.GetString("port")

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	var queue ledger.ReconciliationQueue = ledger.NewMemoryReconciliationQueue()
	if redisClient != nil {
		queue = store.NewRedisReconciliationQueue(redisClient)
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := viper.GetString("kafka.brokers"); brokers != "" {
		kafkaPublisher := kafka.NewPublisher(strings.Split(brokers, ","))
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		log.Printf("Publishing ledger events to %s on topic %s", brokers, ledgerConfig.EventsTopic)
	}

	txLog := store.NewPostgresTransactionLog(db)
	engine := ledger.NewEngine(store.NewPostgresAccountStore(db), txLog, ledgerConfig,
		ledger.WithReconciliationQueue(queue),
		ledger.WithPublisher(publisher),
	)
	identities := identity.NewJWTProvider(db, redisClient, identityConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := ledger.NewReconciler(queue, txLog, ledgerConfig.ReconcileInterval, ledgerConfig.ReconcileBatchSize,
		ledger.WithEventPublisher(publisher, ledgerConfig.EventsTopic),
	)
	go reconciler.Start(ctx)

	userHandler := handlers.NewUserHandler(identities, engine)
	accountHandler := handlers.NewAccountHandler(engine)
	guard := mW.NewIdentityGuard(identities)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "up", "redis": "disabled"}
		if err := db.PingContext(r.Context()); err != nil {
			status["status"], status["database"] = "degraded", "down"
		}
		if redisClient != nil {
			status["redis"] = "up"
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				status["status"], status["redis"] = "degraded", "down"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API routes
	r.Mount("/api/v1", handlers.Routes(userHandler, accountHandler, guard))

	port := viper.GetString("port")

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
