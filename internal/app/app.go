// Package app assembles the analysis pipeline: configuration from the
// environment, infrastructure clients, repositories, and the service
// graph on top of them.
package app

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/anomaly"
	"github.com/soratone/counsel-backend/internal/clients/openai"
	"github.com/soratone/counsel-backend/internal/clustering"
	"github.com/soratone/counsel-backend/internal/data/db"
	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/embedding"
	"github.com/soratone/counsel-backend/internal/ingest"
	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/learning"
	"github.com/soratone/counsel-backend/internal/pkg/envutil"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/representatives"
	"github.com/soratone/counsel-backend/internal/scripts"
	"github.com/soratone/counsel-backend/internal/search"
	"github.com/soratone/counsel-backend/internal/vectorstore"
)

// Config carries the tunable knobs read from the environment. Provider
// credentials and the Postgres DSN stay inside their own constructors.
type Config struct {
	EmbeddingDim       int
	EmbeddingMaxTokens int
	EmbeddingBatchSize int

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SearchCacheTTL time.Duration
}

// ConfigFromEnv reads the pipeline knobs, falling back to defaults.
func ConfigFromEnv() Config {
	return Config{
		EmbeddingDim:       envutil.Int("EMBEDDING_DIM", embedding.DefaultDim),
		EmbeddingMaxTokens: envutil.Int("EMBEDDING_MAX_TOKENS", embedding.DefaultMaxTokens),
		EmbeddingBatchSize: envutil.Int("EMBEDDING_BATCH_SIZE", embedding.DefaultBatchSize),
		RedisAddr:          envutil.Str("REDIS_ADDR", ""),
		RedisPassword:      envutil.Str("REDIS_PASSWORD", ""),
		RedisDB:            envutil.Int("REDIS_DB", 0),
		SearchCacheTTL:     time.Duration(envutil.Int("SEARCH_CACHE_TTL_SECONDS", int(vectorstore.DefaultCacheTTL/time.Second))) * time.Second,
	}
}

// App is the wired service graph.
type App struct {
	Config Config
	Log    *logger.Logger
	DB     *gorm.DB
	Vocab  *keywords.Config
	AI     openai.Client

	Sessions       vectors.SessionRepo
	Vectors        vectors.SuccessVectorRepo
	ClusterResults vectors.ClusterResultRepo
	Assignments    vectors.ClusterAssignmentRepo
	Reps           vectors.RepresentativeRepo
	Anomalies      vectors.AnomalyResultRepo
	Scripts        vectors.GeneratedScriptRepo

	Embedding       *embedding.Service
	Store           vectorstore.Store
	Ingest          *ingest.Service
	Search          *search.Service
	Clustering      *clustering.Service
	Representatives *representatives.Service
	Anomaly         *anomaly.Service
	Generator       *scripts.Generator
	Analyzer        *scripts.Analyzer
	Learning        *learning.Service
}

// New builds the full graph. Postgres and the generation provider are
// required; Redis is an optional search cache.
func New(log *logger.Logger) (*App, error) {
	cfg := ConfigFromEnv()

	gdb, err := db.Open(log)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	vocab, err := keywords.Load()
	if err != nil {
		return nil, fmt.Errorf("keyword config: %w", err)
	}

	ai, err := openai.NewClient(log)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	a := &App{
		Config: cfg,
		Log:    log,
		DB:     gdb,
		Vocab:  vocab,
		AI:     ai,

		Sessions:       vectors.NewSessionRepo(gdb, log),
		Vectors:        vectors.NewSuccessVectorRepo(gdb, log),
		ClusterResults: vectors.NewClusterResultRepo(gdb, log),
		Assignments:    vectors.NewClusterAssignmentRepo(gdb, log),
		Reps:           vectors.NewRepresentativeRepo(gdb, log),
		Anomalies:      vectors.NewAnomalyResultRepo(gdb, log),
		Scripts:        vectors.NewGeneratedScriptRepo(gdb, log),
	}

	a.Embedding = embedding.NewService(ai, log, embedding.Options{
		Dim:       cfg.EmbeddingDim,
		MaxTokens: cfg.EmbeddingMaxTokens,
		BatchSize: cfg.EmbeddingBatchSize,
	})

	a.Store = vectorstore.NewPostgresStore(gdb, log, cfg.EmbeddingDim)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.Store = vectorstore.NewCachedStore(a.Store, rdb, log, cfg.SearchCacheTTL)
		log.Info("Search cache enabled", "addr", cfg.RedisAddr)
	}

	a.Ingest = ingest.NewService(a.Sessions, a.Vectors, a.Embedding, log)
	a.Search = search.NewService(a.Embedding, a.Store, vocab, log)
	a.Clustering = clustering.NewService(gdb, a.Vectors, a.ClusterResults, a.Assignments, log)
	a.Representatives = representatives.NewService(a.ClusterResults, a.Assignments, a.Vectors, a.Sessions, a.Reps, vocab, log)
	a.Anomaly = anomaly.NewService(a.Vectors, a.Sessions, a.Anomalies, log)
	a.Generator = scripts.NewGenerator(ai, a.Representatives, a.Search, a.Scripts, log)
	a.Analyzer = scripts.NewAnalyzer(vocab, log)
	a.Learning = learning.NewService(
		a.Vectors,
		a.Sessions,
		a.ClusterResults,
		a.Scripts,
		a.Ingest,
		a.Clustering,
		a.Representatives,
		a.Anomaly,
		a.Generator,
		a.Analyzer,
		log,
	)

	return a, nil
}
