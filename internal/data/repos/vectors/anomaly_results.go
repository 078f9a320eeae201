package vectors

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/ctxutil"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

type AnomalyResultRepo interface {
	CreateBatch(dbc dbctx.Context, rs []domain.AnomalyResult) error
	ListByAlgorithm(dbc dbctx.Context, algorithm string, limit int) ([]domain.AnomalyResult, error)
	ListAnomalies(dbc dbctx.Context, limit int) ([]domain.AnomalyResult, error)
	DeleteByAlgorithm(dbc dbctx.Context, algorithm string) error
}

type anomalyResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnomalyResultRepo(db *gorm.DB, log *logger.Logger) AnomalyResultRepo {
	return &anomalyResultRepo{db: db, log: log.With("repo", "AnomalyResultRepo")}
}

func (r *anomalyResultRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *anomalyResultRepo) CreateBatch(dbc dbctx.Context, rs []domain.AnomalyResult) error {
	if len(rs) == 0 {
		return nil
	}
	for i := range rs {
		if rs[i].ID == uuid.Nil {
			rs[i].ID = uuid.New()
		}
	}
	return r.conn(dbc).CreateInBatches(rs, 200).Error
}

func (r *anomalyResultRepo) ListByAlgorithm(dbc dbctx.Context, algorithm string, limit int) ([]domain.AnomalyResult, error) {
	q := r.conn(dbc).Where("algorithm = ?", algorithm).Order("anomaly_score DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.AnomalyResult
	err := q.Find(&out).Error
	return out, err
}

func (r *anomalyResultRepo) ListAnomalies(dbc dbctx.Context, limit int) ([]domain.AnomalyResult, error) {
	q := r.conn(dbc).Where("is_anomaly = ?", true).Order("anomaly_score DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.AnomalyResult
	err := q.Find(&out).Error
	return out, err
}

func (r *anomalyResultRepo) DeleteByAlgorithm(dbc dbctx.Context, algorithm string) error {
	return r.conn(dbc).Where("algorithm = ?", algorithm).Delete(&domain.AnomalyResult{}).Error
}
