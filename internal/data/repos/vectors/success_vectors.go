package vectors

import (
	std_errors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/ctxutil"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

type SuccessVectorRepo interface {
	Create(dbc dbctx.Context, v *domain.SuccessVector) error
	CreateBatch(dbc dbctx.Context, vs []domain.SuccessVector) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.SuccessVector, error)
	// ListAll returns every stored vector in insertion order.
	ListAll(dbc dbctx.Context) ([]domain.SuccessVector, error)
	ListByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]domain.SuccessVector, error)
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.SuccessVector, error)
	DeleteBySessionID(dbc dbctx.Context, sessionID uuid.UUID) error
	Count(dbc dbctx.Context) (int64, error)
	CountCreatedSince(dbc dbctx.Context, since time.Time) (int64, error)
}

type successVectorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSuccessVectorRepo(db *gorm.DB, log *logger.Logger) SuccessVectorRepo {
	return &successVectorRepo{db: db, log: log.With("repo", "SuccessVectorRepo")}
}

func (r *successVectorRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *successVectorRepo) Create(dbc dbctx.Context, v *domain.SuccessVector) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return r.conn(dbc).Create(v).Error
}

func (r *successVectorRepo) CreateBatch(dbc dbctx.Context, vs []domain.SuccessVector) error {
	if len(vs) == 0 {
		return nil
	}
	for i := range vs {
		if vs[i].ID == uuid.Nil {
			vs[i].ID = uuid.New()
		}
	}
	return r.conn(dbc).CreateInBatches(vs, 100).Error
}

func (r *successVectorRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.SuccessVector, error) {
	var out domain.SuccessVector
	err := r.conn(dbc).First(&out, "id = ?", id).Error
	if std_errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *successVectorRepo) ListAll(dbc dbctx.Context) ([]domain.SuccessVector, error) {
	var out []domain.SuccessVector
	err := r.conn(dbc).Order("seq ASC").Find(&out).Error
	return out, err
}

func (r *successVectorRepo) ListByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]domain.SuccessVector, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.SuccessVector
	err := r.conn(dbc).Where("id IN ?", ids).Order("seq ASC").Find(&out).Error
	return out, err
}

func (r *successVectorRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]domain.SuccessVector, error) {
	var out []domain.SuccessVector
	err := r.conn(dbc).Where("session_id = ?", sessionID).Order("chunk_index ASC").Find(&out).Error
	return out, err
}

func (r *successVectorRepo) DeleteBySessionID(dbc dbctx.Context, sessionID uuid.UUID) error {
	return r.conn(dbc).Where("session_id = ?", sessionID).Delete(&domain.SuccessVector{}).Error
}

func (r *successVectorRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.conn(dbc).Model(&domain.SuccessVector{}).Count(&n).Error
	return n, err
}

func (r *successVectorRepo) CountCreatedSince(dbc dbctx.Context, since time.Time) (int64, error) {
	var n int64
	err := r.conn(dbc).Model(&domain.SuccessVector{}).Where("created_at > ?", since).Count(&n).Error
	return n, err
}
