package vectors

import (
	std_errors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/ctxutil"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

type ClusterResultRepo interface {
	Create(dbc dbctx.Context, res *domain.ClusterResult) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ClusterResult, error)
	// Latest returns the most recent run, errors.ErrNotFound when none exist.
	Latest(dbc dbctx.Context) (*domain.ClusterResult, error)
	List(dbc dbctx.Context, limit int) ([]domain.ClusterResult, error)
}

type clusterResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterResultRepo(db *gorm.DB, log *logger.Logger) ClusterResultRepo {
	return &clusterResultRepo{db: db, log: log.With("repo", "ClusterResultRepo")}
}

func (r *clusterResultRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *clusterResultRepo) Create(dbc dbctx.Context, res *domain.ClusterResult) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	return r.conn(dbc).Create(res).Error
}

func (r *clusterResultRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ClusterResult, error) {
	var out domain.ClusterResult
	err := r.conn(dbc).First(&out, "id = ?", id).Error
	if std_errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *clusterResultRepo) Latest(dbc dbctx.Context) (*domain.ClusterResult, error) {
	var out domain.ClusterResult
	err := r.conn(dbc).Order("created_at DESC").First(&out).Error
	if std_errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *clusterResultRepo) List(dbc dbctx.Context, limit int) ([]domain.ClusterResult, error) {
	q := r.conn(dbc).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.ClusterResult
	err := q.Find(&out).Error
	return out, err
}
