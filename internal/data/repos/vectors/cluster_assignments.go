package vectors

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/ctxutil"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

type ClusterAssignmentRepo interface {
	CreateBatch(dbc dbctx.Context, as []domain.ClusterAssignment) error
	ListByClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID) ([]domain.ClusterAssignment, error)
	// ListByClusterLabel returns the members of one cluster within a run.
	ListByClusterLabel(dbc dbctx.Context, clusterResultID uuid.UUID, label int) ([]domain.ClusterAssignment, error)
	DeleteByClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID) error
}

type clusterAssignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewClusterAssignmentRepo(db *gorm.DB, log *logger.Logger) ClusterAssignmentRepo {
	return &clusterAssignmentRepo{db: db, log: log.With("repo", "ClusterAssignmentRepo")}
}

func (r *clusterAssignmentRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *clusterAssignmentRepo) CreateBatch(dbc dbctx.Context, as []domain.ClusterAssignment) error {
	if len(as) == 0 {
		return nil
	}
	for i := range as {
		if as[i].ID == uuid.Nil {
			as[i].ID = uuid.New()
		}
	}
	return r.conn(dbc).CreateInBatches(as, 200).Error
}

func (r *clusterAssignmentRepo) ListByClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID) ([]domain.ClusterAssignment, error) {
	var out []domain.ClusterAssignment
	err := r.conn(dbc).
		Where("cluster_result_id = ?", clusterResultID).
		Order("cluster_label ASC").
		Find(&out).Error
	return out, err
}

func (r *clusterAssignmentRepo) ListByClusterLabel(dbc dbctx.Context, clusterResultID uuid.UUID, label int) ([]domain.ClusterAssignment, error) {
	var out []domain.ClusterAssignment
	err := r.conn(dbc).
		Where("cluster_result_id = ? AND cluster_label = ?", clusterResultID, label).
		Find(&out).Error
	return out, err
}

func (r *clusterAssignmentRepo) DeleteByClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID) error {
	return r.conn(dbc).
		Where("cluster_result_id = ?", clusterResultID).
		Delete(&domain.ClusterAssignment{}).Error
}
