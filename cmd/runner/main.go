// Command runner executes a single ingestion run from the command line.
// Useful for cron-less deployments and for testing portal coverage without
// the API server.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/joho/godotenv"

	"inmoradar/internal/config"
	"inmoradar/internal/crawler"
	"inmoradar/internal/extractor"
	"inmoradar/internal/models"
	"inmoradar/internal/pipeline"
	"inmoradar/internal/ratelimit"
	"inmoradar/internal/scoring"
	"inmoradar/internal/session"
	"inmoradar/internal/store"
	"inmoradar/internal/zones"
)

func main() {
	var (
		configPath    = flag.String("config", "config/config.yaml", "path to configuration file")
		portalsFlag   = flag.String("portals", "", "comma-separated portals (default: all)")
		zonesFlag     = flag.String("zones", "", "comma-separated zone names")
		maxPages      = flag.Int("max-pages", 0, "max search pages per portal/zone (0 = config default)")
		maxProperties = flag.Int("max-properties", 0, "max listings per portal/zone (0 = config default)")
		sqlitePath    = flag.String("sqlite", "", "use a SQLite store at this path instead of the configured database")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	appConfig, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *sqlitePath != "" {
		appConfig.Database.Type = "sqlite"
		appConfig.Database.SQLite.Path = *sqlitePath
	}

	backend := openBackend(appConfig)
	defer backend.Close()
	gateway := store.NewGateway(backend, appConfig.Dedup.DebounceWindow)

	zoneTable, err := zones.Load(appConfig.ZonesFile)
	if err != nil {
		log.Printf("Warning: Failed to load zones file: %v. Zone scoring disabled.", err)
		zoneTable = zones.NewTable(nil)
	}

	broker := session.NewBroker(appConfig.Session)
	pacer := ratelimit.NewPacer(1, appConfig.Crawler.GetRequestDelay(), appConfig.Crawler.GetRequestJitter())
	budget := ratelimit.NewBudget(appConfig.Crawler.RequestsPerHour, appConfig.Crawler.RequestsPerDay, true)
	crawl := crawler.New(broker, pacer, budget, appConfig.Crawler)
	scorer := scoring.NewScorer(appConfig.Scoring)

	runner := pipeline.NewRunner(crawl, broker, extractor.New(), scorer,
		gateway, zoneTable, nil, pacer, budget, appConfig.Crawler)

	params := pipeline.RunParams{
		MaxPages:      *maxPages,
		MaxProperties: *maxProperties,
	}
	if *portalsFlag == "" {
		params.Portals = models.KnownPortals
	} else {
		for _, p := range strings.Split(*portalsFlag, ",") {
			params.Portals = append(params.Portals, models.Portal(strings.TrimSpace(p)))
		}
	}
	if *zonesFlag != "" {
		for _, z := range strings.Split(*zonesFlag, ",") {
			params.Zones = append(params.Zones, strings.TrimSpace(z))
		}
	}

	result, err := runner.Run(context.Background(), params)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	log.Printf("Run complete: found=%d processed=%d saved=%d skipped=%d errors=%d (took %s)",
		result.TotalFound, result.TotalProcessed, result.Saved, result.Skipped, result.Errors,
		result.EndedAt.Sub(result.StartedAt))
}

func openBackend(appConfig *config.Config) store.Backend {
	switch appConfig.Database.Type {
	case "postgres":
		backend, err := store.NewPostgres(
			appConfig.Database.Postgres.Host, appConfig.Database.Postgres.Port,
			appConfig.Database.Postgres.User, appConfig.Database.Postgres.Password,
			appConfig.Database.Postgres.Database)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		if err := backend.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		return backend
	case "sqlite":
		backend, err := store.NewSQLite(appConfig.Database.SQLite.Path)
		if err != nil {
			log.Fatalf("Failed to open SQLite database: %v", err)
		}
		if err := backend.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		return backend
	default:
		backend, err := store.NewMySQL(
			appConfig.Database.MySQL.Host, appConfig.Database.MySQL.Port,
			appConfig.Database.MySQL.User, appConfig.Database.MySQL.Password,
			appConfig.Database.MySQL.Database)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		if err := backend.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		return backend
	}
}
