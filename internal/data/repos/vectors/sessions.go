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

type SessionRepo interface {
	Create(dbc dbctx.Context, s *domain.CounselingSession) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.CounselingSession, error)
	// ListSuccessful returns completed-transcription sessions labeled
	// successful, oldest first.
	ListSuccessful(dbc dbctx.Context) ([]domain.CounselingSession, error)
	// ListFailures returns completed-transcription sessions labeled
	// unsuccessful, newest first.
	ListFailures(dbc dbctx.Context, limit int) ([]domain.CounselingSession, error)
	UpdateSuccessLabel(dbc dbctx.Context, id uuid.UUID, isSuccess bool) error
	Count(dbc dbctx.Context) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *domain.CounselingSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return r.conn(dbc).Create(s).Error
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.CounselingSession, error) {
	var out domain.CounselingSession
	err := r.conn(dbc).First(&out, "id = ?", id).Error
	if std_errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *sessionRepo) ListSuccessful(dbc dbctx.Context) ([]domain.CounselingSession, error) {
	var out []domain.CounselingSession
	err := r.conn(dbc).
		Where("is_success = ? AND transcription_status = ?", true, "completed").
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *sessionRepo) ListFailures(dbc dbctx.Context, limit int) ([]domain.CounselingSession, error) {
	var out []domain.CounselingSession
	q := r.conn(dbc).
		Where("is_success = ? AND transcription_status = ?", false, "completed").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *sessionRepo) UpdateSuccessLabel(dbc dbctx.Context, id uuid.UUID, isSuccess bool) error {
	res := r.conn(dbc).Model(&domain.CounselingSession{}).
		Where("id = ?", id).
		Update("is_success", isSuccess)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := r.conn(dbc).Model(&domain.CounselingSession{}).Count(&n).Error
	return n, err
}
