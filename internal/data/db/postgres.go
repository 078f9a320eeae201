package db

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/envutil"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

// Open connects to Postgres using POSTGRES_DSN and applies pool
// settings from the environment.
func Open(log *logger.Logger) (*gorm.DB, error) {
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	if dsn == "" {
		return nil, fmt.Errorf("missing POSTGRES_DSN")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(envutil.Int("POSTGRES_MAX_OPEN_CONNS", 20))
	sqlDB.SetMaxIdleConns(envutil.Int("POSTGRES_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxLifetime(time.Duration(envutil.Int("POSTGRES_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("Connected to Postgres")
	return gdb, nil
}

// Migrate creates or updates the pipeline's tables.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&domain.CounselingSession{},
		&domain.SuccessVector{},
		&domain.ClusterResult{},
		&domain.ClusterAssignment{},
		&domain.ClusterRepresentative{},
		&domain.AnomalyResult{},
		&domain.GeneratedScript{},
	)
}
