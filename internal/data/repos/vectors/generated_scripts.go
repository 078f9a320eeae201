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

type GeneratedScriptRepo interface {
	Create(dbc dbctx.Context, s *domain.GeneratedScript) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.GeneratedScript, error)
	ListRecent(dbc dbctx.Context, limit int) ([]domain.GeneratedScript, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error
}

type generatedScriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGeneratedScriptRepo(db *gorm.DB, log *logger.Logger) GeneratedScriptRepo {
	return &generatedScriptRepo{db: db, log: log.With("repo", "GeneratedScriptRepo")}
}

func (r *generatedScriptRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *generatedScriptRepo) Create(dbc dbctx.Context, s *domain.GeneratedScript) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(dbc).Create(s).Error
}

func (r *generatedScriptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.GeneratedScript, error) {
	var out domain.GeneratedScript
	err := r.conn(dbc).First(&out, "id = ?", id).Error
	if std_errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *generatedScriptRepo) ListRecent(dbc dbctx.Context, limit int) ([]domain.GeneratedScript, error) {
	q := r.conn(dbc).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.GeneratedScript
	err := q.Find(&out).Error
	return out, err
}

func (r *generatedScriptRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status string) error {
	res := r.conn(dbc).Model(&domain.GeneratedScript{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}
