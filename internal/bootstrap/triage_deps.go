package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	apihttp "github.com/Tanay2104/Smart-Email/adapter/in/http"
	"github.com/Tanay2104/Smart-Email/adapter/out/filestore"
	"github.com/Tanay2104/Smart-Email/adapter/out/mongodb"
	"github.com/Tanay2104/Smart-Email/adapter/out/persistence"
	"github.com/Tanay2104/Smart-Email/config"
	"github.com/Tanay2104/Smart-Email/core/agent/llm"
	"github.com/Tanay2104/Smart-Email/core/agent/rag"
	"github.com/Tanay2104/Smart-Email/core/port/out"
	"github.com/Tanay2104/Smart-Email/infra/database"
	"github.com/Tanay2104/Smart-Email/pkg/cache"
)

type Dependencies struct {
	Config     *config.Config
	Log        zerolog.Logger
	Heuristics *config.Heuristics

	// Optional backends, nil when not configured
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	Cache   *cache.RedisCache
	MongoDB *mongo.Client

	// Model access
	LLMClient *llm.Client
	Embedder  *rag.Embedder
	Refiner   *llm.ImportanceRefiner

	// Output
	ResultFile *filestore.ResultFile
	Sinks      []out.ResultSink
	Results    out.ResultReader
}

// NewDependencies connects every configured backend. A configured backend
// that cannot be reached is an error; unconfigured ones are skipped.
func NewDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Log: log}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	deps.Heuristics = config.LoadHeuristics(cfg.HeuristicPath, log)

	// PostgreSQL (pgxpool for the catalog, sqlx for run results)
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		deps.DB = db
		cleanups = append(cleanups, db.Close)

		sqlDB, err := database.NewSQLX(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres (sqlx): %w", err)
		}
		deps.SQLDB = sqlDB
		cleanups = append(cleanups, func() { sqlDB.Close() })
		log.Info().Msg("postgres connected")
	}

	// Redis (verdict and embedding cache)
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		deps.Redis = rdb
		deps.Cache = cache.NewRedisCache(rdb, cfg.CacheTTL)
		cleanups = append(cleanups, func() { deps.Cache.Close() })
		log.Info().Msg("redis connected")
	}

	// MongoDB (run history)
	if cfg.MongoDBURL != "" {
		client, err := mongodb.NewClient(ctx, cfg.MongoDBURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.MongoDB = client
		cleanups = append(cleanups, func() { client.Disconnect(context.Background()) })
		log.Info().Str("database", cfg.MongoDBName).Msg("mongodb connected")
	}

	// LLM / embeddings
	deps.LLMClient = llm.NewClientWithConfig(llm.ClientConfig{
		BaseURL:    cfg.LLMBaseURL,
		APIKey:     cfg.LLMAPIKey,
		Model:      cfg.LLMModel,
		EmbedModel: cfg.EmbedModel,

		MaxConcurrent: cfg.LLMMaxConc,
	}, log)

	deps.Embedder = rag.NewEmbedder(deps.LLMClient, cfg.EmbedTimeout, log)
	refinerOpts := llm.RefinerOptions{
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: float32(cfg.LLMTemperature),
		Timeout:     cfg.LLMTimeout,
	}
	if deps.Cache != nil {
		deps.Embedder.WithCache(deps.Cache, cfg.EmbedModel, cache.Key)
		refinerOpts.Cache = deps.Cache
	}
	deps.Refiner = llm.NewImportanceRefiner(deps.LLMClient, refinerOpts, log)

	if err := deps.initSinks(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	return deps, cleanup, nil
}

// initSinks always writes the JSON file and mirrors runs into every
// configured database. The reader prefers Postgres, then MongoDB.
func (d *Dependencies) initSinks(ctx context.Context) error {
	d.ResultFile = filestore.NewResultFile(d.Config.OutputPath)
	d.Sinks = []out.ResultSink{d.ResultFile}
	d.Results = d.ResultFile

	if d.MongoDB != nil {
		adapter := mongodb.NewResultAdapter(d.MongoDB.Database(d.Config.MongoDBName))
		if err := adapter.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongodb indexes: %w", err)
		}
		d.Sinks = append(d.Sinks, adapter)
		d.Results = adapter
	}

	if d.SQLDB != nil {
		adapter := persistence.NewResultAdapter(d.SQLDB)
		if err := adapter.EnsureSchema(ctx); err != nil {
			return err
		}
		d.Sinks = append(d.Sinks, adapter)
		d.Results = adapter
	}
	return nil
}

// catalogAdapter returns the Postgres catalog with its schema in place.
func (d *Dependencies) catalogAdapter(ctx context.Context) (*persistence.CatalogAdapter, error) {
	if d.DB == nil {
		return nil, fmt.Errorf("postgres catalog backend requires DATABASE_URL")
	}
	adapter := persistence.NewCatalogAdapter(d.DB)
	if err := adapter.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return adapter, nil
}

// OpenCatalog loads the vector index and its metadata store and checks
// that they line up.
func (d *Dependencies) OpenCatalog(ctx context.Context) (*rag.Catalog, error) {
	index, err := rag.LoadFlatIndex(d.Config.IndexPath)
	if err != nil {
		return nil, err
	}

	var store out.CatalogStore
	switch d.Config.MetaStoreBackend {
	case "postgres":
		adapter, err := d.catalogAdapter(ctx)
		if err != nil {
			return nil, err
		}
		store = adapter
	default:
		file, err := filestore.OpenCatalogFile(d.Config.MetaPath)
		if err != nil {
			return nil, err
		}
		store = file
	}

	catalog, err := rag.OpenCatalog(ctx, index, store)
	if err != nil {
		return nil, err
	}
	d.Log.Info().
		Str("index", d.Config.IndexPath).
		Str("meta_backend", d.Config.MetaStoreBackend).
		Int("domains", catalog.Len()).
		Int("dim", catalog.Dim()).
		Msg("domain catalog loaded")
	return catalog, nil
}

// CatalogWriter returns the metadata store build-index writes to.
func (d *Dependencies) CatalogWriter(ctx context.Context) (out.CatalogWriter, error) {
	if d.Config.MetaStoreBackend == "postgres" {
		adapter, err := d.catalogAdapter(ctx)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}
	return filestore.NewCatalogFile(d.Config.MetaPath), nil
}

// HealthChecks lists readiness probes for the configured backends.
func (d *Dependencies) HealthChecks() map[string]apihttp.CheckFunc {
	checks := map[string]apihttp.CheckFunc{}
	if d.DB != nil {
		checks["postgres"] = d.DB.Ping
	}
	if d.Cache != nil {
		checks["redis"] = d.Cache.Ping
	}
	if d.MongoDB != nil {
		checks["mongodb"] = func(ctx context.Context) error { return d.MongoDB.Ping(ctx, nil) }
	}
	return checks
}
