package clustering

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/pkg/ctxutil"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/errors"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/pkg/vecmath"
)

const (
	AlgorithmKMeans = "kmeans"
	AlgorithmDBSCAN = "dbscan"

	defaultKMin = 2
	defaultKMax = 15

	defaultEps = 0.5
)

// Options configures one clustering run. Zero fields take defaults.
type Options struct {
	Algorithm   string
	KMin        int
	KMax        int
	AutoSelectK bool
	// Eps and MinPoints apply to the density algorithm only.
	Eps       float64
	MinPoints int
}

// Assignment is one vector's cluster membership.
type Assignment struct {
	VectorID           uuid.UUID
	ClusterLabel       int
	DistanceToCentroid float64
}

// Metrics captures run quality indicators.
type Metrics struct {
	SilhouetteScore float64
	Inertia         float64
	Iterations      int
	ScoresByK       map[int]float64
	NoiseCount      int
}

// Outcome is a persisted clustering run.
type Outcome struct {
	ClusterResultID uuid.UUID
	Algorithm       string
	ClusterCount    int
	SilhouetteScore float64
	Assignments     []Assignment
	Centroids       [][]float32
	Metrics         Metrics
}

// Service clusters the stored success vector corpus.
type Service struct {
	db          *gorm.DB
	vectorRepo  vectors.SuccessVectorRepo
	resultRepo  vectors.ClusterResultRepo
	assignRepo  vectors.ClusterAssignmentRepo
	log         *logger.Logger
}

func NewService(
	db *gorm.DB,
	vectorRepo vectors.SuccessVectorRepo,
	resultRepo vectors.ClusterResultRepo,
	assignRepo vectors.ClusterAssignmentRepo,
	log *logger.Logger,
) *Service {
	return &Service{
		db:         db,
		vectorRepo: vectorRepo,
		resultRepo: resultRepo,
		assignRepo: assignRepo,
		log:        log.With("service", "ClusteringService"),
	}
}

// Run clusters the whole stored corpus and persists the outcome.
func (s *Service) Run(ctx context.Context, opts Options) (*Outcome, error) {
	dbc := dbctx.Context{Ctx: ctx}

	rows, err := s.vectorRepo.ListAll(dbc)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	vecs := make([][]float32, 0, len(rows))
	for i := range rows {
		vec, decErr := domain.DecodeVector(rows[i].Embedding)
		if decErr != nil {
			return nil, fmt.Errorf("decode vector %s: %w", rows[i].ID, decErr)
		}
		ids = append(ids, rows[i].ID)
		vecs = append(vecs, vec)
	}

	outcome, err := s.clusterVectors(vecs, opts)
	if err != nil {
		return nil, err
	}
	s.log.Info("Clustering finished",
		"algorithm", outcome.Algorithm,
		"vectors", len(vecs),
		"clusters", outcome.ClusterCount,
		"silhouette", outcome.SilhouetteScore,
	)

	if err := s.save(ctx, outcome, ids, opts); err != nil {
		return nil, err
	}
	return outcome, nil
}

// clusterVectors fits the requested algorithm without touching storage.
func (s *Service) clusterVectors(vecs [][]float32, opts Options) (*Outcome, error) {
	if len(vecs) < 2 {
		return nil, fmt.Errorf("%w: clustering needs at least 2 vectors, have %d", errors.ErrInvalidArgument, len(vecs))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", errors.ErrInvalidArgument, i, len(v), dim)
		}
	}

	switch opts.Algorithm {
	case "", AlgorithmKMeans:
		return s.runKMeans(vecs, opts)
	case AlgorithmDBSCAN:
		return s.runDBSCAN(vecs, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", errors.ErrInvalidArgument, opts.Algorithm)
	}
}

func (s *Service) runKMeans(vecs [][]float32, opts Options) (*Outcome, error) {
	kMin := opts.KMin
	if kMin < defaultKMin {
		kMin = defaultKMin
	}
	kMax := opts.KMax
	if kMax <= 0 {
		kMax = defaultKMax
	}
	if kMax > len(vecs)-1 {
		kMax = len(vecs) - 1
	}
	if kMin > kMax {
		return nil, fmt.Errorf("%w: no valid cluster count in [%d, %d] for %d vectors", errors.ErrInvalidArgument, kMin, kMax, len(vecs))
	}

	bestK := kMin
	bestScore := -1.0
	scoresByK := make(map[int]float64)

	if opts.AutoSelectK {
		for k := kMin; k <= kMax; k++ {
			fit := KMeans(vecs, k)
			if distinctLabels(fit.Labels) < 2 {
				continue
			}
			score := Silhouette(vecs, fit.Labels)
			scoresByK[k] = score
			s.log.Debug("Cluster count candidate scored", "k", k, "silhouette", score)
			if score > bestScore {
				bestScore = score
				bestK = k
			}
		}
	}

	final := KMeans(vecs, bestK)
	if distinctLabels(final.Labels) > 1 {
		bestScore = Silhouette(vecs, final.Labels)
	} else {
		bestScore = 0
	}

	assignments := make([]Assignment, len(vecs))
	for i := range vecs {
		assignments[i] = Assignment{
			ClusterLabel:       final.Labels[i],
			DistanceToCentroid: vecmath.Euclidean(vecs[i], final.Centroids[final.Labels[i]]),
		}
	}

	return &Outcome{
		Algorithm:       AlgorithmKMeans,
		ClusterCount:    bestK,
		SilhouetteScore: bestScore,
		Assignments:     assignments,
		Centroids:       final.Centroids,
		Metrics: Metrics{
			SilhouetteScore: bestScore,
			Inertia:         final.Inertia,
			Iterations:      final.Iterations,
			ScoresByK:       scoresByK,
		},
	}, nil
}

func (s *Service) runDBSCAN(vecs [][]float32, opts Options) (*Outcome, error) {
	eps := opts.Eps
	if eps <= 0 {
		eps = defaultEps
	}
	minPoints := opts.MinPoints
	if minPoints <= 0 {
		minPoints = 3
	}

	fit := DBSCAN(vecs, eps, minPoints)

	score := 0.0
	if fit.ClusterCount > 1 {
		score = Silhouette(vecs, fit.Labels)
	}

	centroids := make([][]float32, fit.ClusterCount)
	for label := 0; label < fit.ClusterCount; label++ {
		centroids[label] = fit.Centroids[label]
	}

	assignments := make([]Assignment, len(vecs))
	for i := range vecs {
		label := fit.Labels[i]
		dist := math.Inf(1)
		if label >= 0 {
			dist = vecmath.Euclidean(vecs[i], fit.Centroids[label])
		}
		assignments[i] = Assignment{ClusterLabel: label, DistanceToCentroid: dist}
	}

	return &Outcome{
		Algorithm:       AlgorithmDBSCAN,
		ClusterCount:    fit.ClusterCount,
		SilhouetteScore: score,
		Assignments:     assignments,
		Centroids:       centroids,
		Metrics: Metrics{
			SilhouetteScore: score,
			NoiseCount:      fit.NoiseCount,
		},
	}, nil
}

// save writes the run and its assignments in one transaction. Distances
// are recomputed from the stored embeddings rather than the in-memory
// copies, so a concurrent rewrite of a vector cannot leave a distance
// that matches nothing in storage.
func (s *Service) save(ctx context.Context, outcome *Outcome, ids []uuid.UUID, opts Options) error {
	params, err := json.Marshal(map[string]any{
		"k_min":         opts.KMin,
		"k_max":         opts.KMax,
		"auto_select_k": opts.AutoSelectK,
		"eps":           opts.Eps,
		"min_points":    opts.MinPoints,
	})
	if err != nil {
		return err
	}

	return s.db.WithContext(ctxutil.Default(ctx)).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		result := &domain.ClusterResult{
			Algorithm:       outcome.Algorithm,
			ClusterCount:    outcome.ClusterCount,
			Parameters:      datatypes.JSON(params),
			SilhouetteScore: outcome.SilhouetteScore,
		}
		if err := s.resultRepo.Create(dbc, result); err != nil {
			return fmt.Errorf("save cluster result: %w", err)
		}
		outcome.ClusterResultID = result.ID

		rows := make([]domain.ClusterAssignment, 0, len(ids))
		for i, id := range ids {
			outcome.Assignments[i].VectorID = id

			var distPtr *float64
			label := outcome.Assignments[i].ClusterLabel
			if label >= 0 && label < len(outcome.Centroids) {
				stored, getErr := s.vectorRepo.GetByID(dbc, id)
				if getErr != nil {
					return fmt.Errorf("refetch vector %s: %w", id, getErr)
				}
				vec, decErr := domain.DecodeVector(stored.Embedding)
				if decErr != nil {
					return fmt.Errorf("decode refetched vector %s: %w", id, decErr)
				}
				d := vecmath.Euclidean(vec, outcome.Centroids[label])
				if !math.IsInf(d, 1) {
					distPtr = &d
				}
			}

			rows = append(rows, domain.ClusterAssignment{
				VectorID:           id,
				ClusterResultID:    result.ID,
				ClusterLabel:       label,
				DistanceToCentroid: distPtr,
			})
		}
		if err := s.assignRepo.CreateBatch(dbc, rows); err != nil {
			return fmt.Errorf("save cluster assignments: %w", err)
		}
		return nil
	})
}

func distinctLabels(labels []int) int {
	set := make(map[int]struct{}, len(labels))
	for _, l := range labels {
		set[l] = struct{}{}
	}
	return len(set)
}
