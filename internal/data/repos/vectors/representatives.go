package vectors

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/ctxutil"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
)

type RepresentativeRepo interface {
	// ReplaceForClusterResult swaps the full representative set of a run
	// in one transaction, so readers never observe partial sets.
	ReplaceForClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID, reps []domain.ClusterRepresentative) error
	ListByClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID) ([]domain.ClusterRepresentative, error)
	ListPrimary(dbc dbctx.Context, clusterResultID uuid.UUID) ([]domain.ClusterRepresentative, error)
	// ListAllPrimary returns primary representatives across every run,
	// used for novelty comparison against the established exemplars.
	ListAllPrimary(dbc dbctx.Context) ([]domain.ClusterRepresentative, error)
	ListNonPrimary(dbc dbctx.Context, clusterResultID uuid.UUID, limit int) ([]domain.ClusterRepresentative, error)
}

type representativeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRepresentativeRepo(db *gorm.DB, log *logger.Logger) RepresentativeRepo {
	return &representativeRepo{db: db, log: log.With("repo", "RepresentativeRepo")}
}

func (r *representativeRepo) conn(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(ctxutil.Default(dbc.Ctx))
}

func (r *representativeRepo) ReplaceForClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID, reps []domain.ClusterRepresentative) error {
	run := func(tx *gorm.DB) error {
		if err := tx.Where("cluster_result_id = ?", clusterResultID).
			Delete(&domain.ClusterRepresentative{}).Error; err != nil {
			return err
		}
		if len(reps) == 0 {
			return nil
		}
		for i := range reps {
			if reps[i].ID == uuid.Nil {
				reps[i].ID = uuid.New()
			}
			reps[i].ClusterResultID = clusterResultID
		}
		return tx.CreateInBatches(reps, 200).Error
	}

	// Reuse a caller-provided transaction; otherwise open our own.
	if dbc.Tx != nil {
		return run(r.conn(dbc))
	}
	return r.db.WithContext(ctxutil.Default(dbc.Ctx)).Transaction(run)
}

func (r *representativeRepo) ListByClusterResult(dbc dbctx.Context, clusterResultID uuid.UUID) ([]domain.ClusterRepresentative, error) {
	var out []domain.ClusterRepresentative
	err := r.conn(dbc).
		Where("cluster_result_id = ?", clusterResultID).
		Order("cluster_label ASC, quality_score DESC").
		Find(&out).Error
	return out, err
}

func (r *representativeRepo) ListPrimary(dbc dbctx.Context, clusterResultID uuid.UUID) ([]domain.ClusterRepresentative, error) {
	var out []domain.ClusterRepresentative
	err := r.conn(dbc).
		Where("cluster_result_id = ? AND is_primary = ?", clusterResultID, true).
		Order("quality_score DESC, cluster_label ASC").
		Find(&out).Error
	return out, err
}

func (r *representativeRepo) ListAllPrimary(dbc dbctx.Context) ([]domain.ClusterRepresentative, error) {
	var out []domain.ClusterRepresentative
	err := r.conn(dbc).
		Where("is_primary = ?", true).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *representativeRepo) ListNonPrimary(dbc dbctx.Context, clusterResultID uuid.UUID, limit int) ([]domain.ClusterRepresentative, error) {
	q := r.conn(dbc).
		Where("cluster_result_id = ? AND is_primary = ?", clusterResultID, false).
		Order("quality_score DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.ClusterRepresentative
	err := q.Find(&out).Error
	return out, err
}
