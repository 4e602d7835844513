package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"inmoradar/internal/cleanup"
	"inmoradar/internal/config"
	"inmoradar/internal/crawler"
	"inmoradar/internal/extractor"
	"inmoradar/internal/handlers"
	"inmoradar/internal/pipeline"
	"inmoradar/internal/ratelimit"
	"inmoradar/internal/scheduler"
	"inmoradar/internal/scoring"
	"inmoradar/internal/search"
	"inmoradar/internal/session"
	"inmoradar/internal/store"
	"inmoradar/internal/zones"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	configPath := getEnv("CONFIG_PATH", "config/config.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}

	backend := openBackend(appConfig)
	defer backend.Close()

	gateway := store.NewGateway(backend, appConfig.Dedup.DebounceWindow)

	// Zone reference data
	zoneTable, err := zones.Load(getEnvOrConfig(appConfig.ZonesFile, "ZONES_FILE", "config/zones.yaml"))
	if err != nil {
		log.Printf("Warning: Failed to load zones file: %v. Zone scoring disabled.", err)
		zoneTable = zones.NewTable(nil)
	} else {
		log.Printf("Loaded %d zones", zoneTable.Len())
	}

	// Meilisearch
	var searchClient *search.SearchClient
	meiliHost := getEnvOrConfig(appConfig.Search.Meilisearch.Host, "MEILISEARCH_HOST", "")
	if meiliHost != "" {
		meiliKey := getEnvOrConfig(appConfig.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", "")
		searchClient = search.NewSearchClient(meiliHost, meiliKey)
		if err := searchClient.InitIndex(); err != nil {
			log.Printf("Warning: Failed to initialize search index: %v", err)
		}
	} else {
		log.Println("Meilisearch not configured, search endpoints disabled")
	}

	// Session env overrides: secrets stay out of the YAML file
	if v := os.Getenv("UNBLOCKER_ENDPOINT"); v != "" {
		appConfig.Session.UnblockerEndpoint = v
	}
	if v := os.Getenv("UNBLOCKER_TOKEN"); v != "" {
		appConfig.Session.UnblockerToken = v
	}
	if v := os.Getenv("BROWSER_WS_ENDPOINT"); v != "" {
		appConfig.Session.BrowserWSEndpoint = v
	}

	// Ingestion pipeline
	broker := session.NewBroker(appConfig.Session)
	pacer := ratelimit.NewPacer(1, appConfig.Crawler.GetRequestDelay(), appConfig.Crawler.GetRequestJitter())
	budget := ratelimit.NewBudget(appConfig.Crawler.RequestsPerHour, appConfig.Crawler.RequestsPerDay, true)
	crawl := crawler.New(broker, pacer, budget, appConfig.Crawler)
	scorer := scoring.NewScorer(appConfig.Scoring)

	var indexer pipeline.Indexer
	if searchClient != nil {
		indexer = searchClient
	}
	runner := pipeline.NewRunner(crawl, broker, extractor.New(), scorer,
		gateway, zoneTable, indexer, pacer, budget, appConfig.Crawler)

	// Scheduler
	appScheduler := scheduler.NewScheduler(runner, appConfig)
	if err := appScheduler.Start(); err != nil {
		log.Printf("Warning: Failed to start scheduler: %v", err)
	}
	defer appScheduler.Stop()

	var deindexer cleanup.Deindexer
	if searchClient != nil {
		deindexer = searchClient
	}
	cleanupService := cleanup.NewService(backend, deindexer)

	// HTTP layer
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{getEnv("CORS_ORIGIN", "http://localhost:5173")},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
	}))

	propertyHandler := handlers.NewPropertyHandler(gateway, searchClient)
	runHandler := handlers.NewRunHandler(runner)
	adminHandler := handlers.NewAdminHandler(gateway, appScheduler, cleanupService)

	r.GET("/health", healthCheck)

	r.GET("/api/properties", propertyHandler.ListProperties)
	r.GET("/api/properties/lookup", propertyHandler.GetProperty)
	r.GET("/api/properties/:id/history", propertyHandler.GetPropertyHistory)
	r.GET("/api/search", propertyHandler.SearchProperties)

	r.POST("/api/runs", runHandler.StartRun)
	r.POST("/api/import/text", runHandler.ImportText)
	r.POST("/api/import/url", runHandler.ImportURL)

	admin := r.Group("/api/admin")
	{
		admin.GET("/stats", adminHandler.GetStats)
		admin.POST("/daily-run/trigger", adminHandler.TriggerDailyRun)
		admin.POST("/cleanup/run", adminHandler.RunCleanup)
		admin.POST("/comparables/:id/review", adminHandler.ReviewComparable)
	}

	port := getEnv("PORT", "8080")
	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

// openBackend selects the persistence backend from configuration. The
// schema is initialized on every start; both paths are idempotent.
func openBackend(appConfig *config.Config) store.Backend {
	dbType := appConfig.Database.Type
	if dbType == "" {
		dbType = getEnv("DB_TYPE", "mysql")
	}

	switch dbType {
	case "postgres":
		log.Println("Using PostgreSQL")
		pgCfg := appConfig.Database.Postgres
		backend, err := store.NewPostgres(
			getEnvOrConfig(pgCfg.Host, "DB_HOST", "db"),
			portOrEnv(pgCfg.Port, 5432),
			getEnvOrConfig(pgCfg.User, "DB_USER", "inmoradar"),
			getEnvOrConfig(pgCfg.Password, "DB_PASSWORD", "inmoradar"),
			getEnvOrConfig(pgCfg.Database, "DB_NAME", "inmoradar"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		if err := backend.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		return backend

	case "sqlite":
		log.Println("Using SQLite")
		path := appConfig.Database.SQLite.Path
		if path == "" {
			path = getEnv("SQLITE_PATH", "inmoradar.db")
		}
		backend, err := store.NewSQLite(path)
		if err != nil {
			log.Fatalf("Failed to open SQLite database: %v", err)
		}
		if err := backend.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		return backend

	default:
		log.Println("Using MySQL with GORM")
		mysqlCfg := appConfig.Database.MySQL
		backend, err := store.NewMySQL(
			getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
			portOrEnv(mysqlCfg.Port, 3306),
			getEnvOrConfig(mysqlCfg.User, "DB_USER", "inmoradar"),
			getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", "inmoradar"),
			getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "inmoradar"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		if err := backend.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		return backend
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig returns config value if set, otherwise falls back to environment variable, then default
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if configValue != "" {
		return configValue
	}
	return getEnv(envKey, defaultValue)
}

func portOrEnv(configPort, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			return port
		}
	}
	return defaultPort
}
