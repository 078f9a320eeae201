// Package representatives selects the exemplary conversation chunks of
// each cluster, scores them, and maintains the persisted representative
// set per clustering run.
package representatives

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/soratone/counsel-backend/internal/data/repos/vectors"
	"github.com/soratone/counsel-backend/internal/domain"
	"github.com/soratone/counsel-backend/internal/keywords"
	"github.com/soratone/counsel-backend/internal/pkg/dbctx"
	"github.com/soratone/counsel-backend/internal/pkg/logger"
	"github.com/soratone/counsel-backend/internal/pkg/vecmath"
)

const (
	DefaultMaxPerCluster = 3
	DefaultMinQuality    = 0.5
	DefaultMaxForScripts = 8
)

// SessionInfo is the session context attached to a representative.
type SessionInfo struct {
	SessionID     uuid.UUID `json:"session_id"`
	CounselorName string    `json:"counselor_name"`
	CreatedAt     time.Time `json:"created_at"`
	IsSuccess     bool      `json:"is_success"`
}

// Representative is one selected exemplar.
type Representative struct {
	VectorID           uuid.UUID   `json:"vector_id"`
	ClusterLabel       int         `json:"cluster_label"`
	QualityScore       float64     `json:"quality_score"`
	DistanceToCentroid float64     `json:"distance_to_centroid"`
	IsPrimary          bool        `json:"is_primary"`
	Text               string      `json:"text"`
	SessionInfo        SessionInfo `json:"session_info"`
}

// ClusterSet groups a cluster's representatives.
type ClusterSet struct {
	ClusterLabel    int              `json:"cluster_label"`
	Representatives []Representative `json:"representatives"`
}

// Summary aggregates one extraction run.
type Summary struct {
	TotalClusters        int     `json:"total_clusters"`
	TotalRepresentatives int     `json:"total_representatives"`
	AvgQualityScore      float64 `json:"avg_quality_score"`
}

// ExtractResult is the outcome of Extract.
type ExtractResult struct {
	ClusterResultID uuid.UUID    `json:"cluster_result_id"`
	Clusters        []ClusterSet `json:"representatives"`
	Summary         Summary      `json:"summary"`
}

// ClusterCharacteristics describes one cluster's content.
type ClusterCharacteristics struct {
	ClusterSize    int      `json:"cluster_size"`
	AvgTextLength  float64  `json:"avg_text_length"`
	CommonKeywords []string `json:"common_keywords"`
	Description    string   `json:"characteristics"`
}

// ScriptCandidate is a representative enriched for script generation.
type ScriptCandidate struct {
	ClusterLabel    int                    `json:"cluster_label"`
	VectorID        uuid.UUID              `json:"vector_id"`
	Text            string                 `json:"text"`
	QualityScore    float64                `json:"quality_score"`
	SessionInfo     SessionInfo            `json:"session_info"`
	Characteristics ClusterCharacteristics `json:"cluster_characteristics"`
}

// Options tunes Extract. Zero fields take defaults.
type Options struct {
	MaxPerCluster int
	MinQuality    float64
}

// Service extracts and persists cluster representatives.
type Service struct {
	resultRepo  vectors.ClusterResultRepo
	assignRepo  vectors.ClusterAssignmentRepo
	vectorRepo  vectors.SuccessVectorRepo
	sessionRepo vectors.SessionRepo
	repRepo     vectors.RepresentativeRepo
	vocab       *keywords.Config
	log         *logger.Logger
}

func NewService(
	resultRepo vectors.ClusterResultRepo,
	assignRepo vectors.ClusterAssignmentRepo,
	vectorRepo vectors.SuccessVectorRepo,
	sessionRepo vectors.SessionRepo,
	repRepo vectors.RepresentativeRepo,
	vocab *keywords.Config,
	log *logger.Logger,
) *Service {
	return &Service{
		resultRepo:  resultRepo,
		assignRepo:  assignRepo,
		vectorRepo:  vectorRepo,
		sessionRepo: sessionRepo,
		repRepo:     repRepo,
		vocab:       vocab,
		log:         log.With("service", "RepresentativeService"),
	}
}

// Extract scores every member of every cluster in a run, selects the
// top candidates per cluster, and replaces the run's stored
// representative set with the selection.
func (s *Service) Extract(ctx context.Context, clusterResultID uuid.UUID, opts Options) (*ExtractResult, error) {
	if opts.MaxPerCluster <= 0 {
		opts.MaxPerCluster = DefaultMaxPerCluster
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = DefaultMinQuality
	}
	dbc := dbctx.Context{Ctx: ctx}

	if _, err := s.resultRepo.GetByID(dbc, clusterResultID); err != nil {
		return nil, fmt.Errorf("clustering run %s: %w", clusterResultID, err)
	}

	assignments, err := s.assignRepo.ListByClusterResult(dbc, clusterResultID)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	// Noise points never represent anything.
	byLabel := make(map[int][]domain.ClusterAssignment)
	for _, a := range assignments {
		if a.ClusterLabel >= 0 {
			byLabel[a.ClusterLabel] = append(byLabel[a.ClusterLabel], a)
		}
	}
	labels := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	primaries, err := s.loadPrimaryEmbeddings(dbc)
	if err != nil {
		return nil, err
	}

	var clusters []ClusterSet
	var allScores []float64

	for _, label := range labels {
		reps, cErr := s.extractForCluster(dbc, byLabel[label], label, opts, primaries)
		if cErr != nil {
			return nil, cErr
		}
		if len(reps) == 0 {
			continue
		}
		clusters = append(clusters, ClusterSet{ClusterLabel: label, Representatives: reps})
		for _, r := range reps {
			allScores = append(allScores, r.QualityScore)
		}
	}

	rows := make([]domain.ClusterRepresentative, 0, len(allScores))
	for _, c := range clusters {
		for _, r := range c.Representatives {
			rows = append(rows, domain.ClusterRepresentative{
				VectorID:           r.VectorID,
				ClusterLabel:       c.ClusterLabel,
				QualityScore:       r.QualityScore,
				DistanceToCentroid: r.DistanceToCentroid,
				IsPrimary:          r.IsPrimary,
			})
		}
	}
	if err := s.repRepo.ReplaceForClusterResult(dbc, clusterResultID, rows); err != nil {
		return nil, fmt.Errorf("replace representatives: %w", err)
	}

	summary := Summary{
		TotalClusters:        len(clusters),
		TotalRepresentatives: len(rows),
	}
	if len(allScores) > 0 {
		var sum float64
		for _, sc := range allScores {
			sum += sc
		}
		summary.AvgQualityScore = sum / float64(len(allScores))
	}
	s.log.Info("Representative extraction finished",
		"cluster_result_id", clusterResultID.String(),
		"clusters", summary.TotalClusters,
		"representatives", summary.TotalRepresentatives,
	)

	return &ExtractResult{
		ClusterResultID: clusterResultID,
		Clusters:        clusters,
		Summary:         summary,
	}, nil
}

type primaryEmbedding struct {
	vectorID  uuid.UUID
	embedding []float32
}

func (s *Service) loadPrimaryEmbeddings(dbc dbctx.Context) ([]primaryEmbedding, error) {
	reps, err := s.repRepo.ListAllPrimary(dbc)
	if err != nil {
		return nil, fmt.Errorf("load existing primaries: %w", err)
	}
	out := make([]primaryEmbedding, 0, len(reps))
	for _, rep := range reps {
		v, getErr := s.vectorRepo.GetByID(dbc, rep.VectorID)
		if getErr != nil {
			continue
		}
		vec, decErr := domain.DecodeVector(v.Embedding)
		if decErr != nil || len(vec) == 0 {
			continue
		}
		out = append(out, primaryEmbedding{vectorID: rep.VectorID, embedding: vec})
	}
	return out, nil
}

func (s *Service) extractForCluster(
	dbc dbctx.Context,
	members []domain.ClusterAssignment,
	label int,
	opts Options,
	primaries []primaryEmbedding,
) ([]Representative, error) {
	ids := make([]uuid.UUID, len(members))
	distByVector := make(map[uuid.UUID]*float64, len(members))
	for i, m := range members {
		ids[i] = m.VectorID
		distByVector[m.VectorID] = m.DistanceToCentroid
	}

	rows, err := s.vectorRepo.ListByIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load cluster %d vectors: %w", label, err)
	}

	sessions := make(map[uuid.UUID]*domain.CounselingSession)
	var candidates []Representative
	seqByVector := make(map[uuid.UUID]int64, len(rows))

	for i := range rows {
		v := &rows[i]
		session, ok := sessions[v.SessionID]
		if !ok {
			session, err = s.sessionRepo.GetByID(dbc, v.SessionID)
			if err != nil {
				return nil, fmt.Errorf("load session %s: %w", v.SessionID, err)
			}
			sessions[v.SessionID] = session
		}

		embedding, decErr := domain.DecodeVector(v.Embedding)
		if decErr != nil {
			s.log.Warn("Skipping candidate with undecodable embedding", "vector_id", v.ID.String())
			continue
		}
		maxSim := maxSimilarity(v.ID, embedding, primaries)

		isSuccess := session.IsSuccess != nil && *session.IsSuccess
		score := QualityScore(QualityInputs{
			DistanceToCentroid:       distByVector[v.ID],
			SessionIsSuccess:         isSuccess,
			Text:                     v.ChunkText,
			MaxSimilarityToPrimaries: maxSim,
		}, s.vocab)
		if score < opts.MinQuality {
			continue
		}

		dist := 0.0
		if d := distByVector[v.ID]; d != nil {
			dist = *d
		}
		seqByVector[v.ID] = v.Seq
		candidates = append(candidates, Representative{
			VectorID:           v.ID,
			ClusterLabel:       label,
			QualityScore:       score,
			DistanceToCentroid: dist,
			Text:               v.ChunkText,
			SessionInfo: SessionInfo{
				SessionID:     session.ID,
				CounselorName: session.CounselorName,
				CreatedAt:     session.CreatedAt,
				IsSuccess:     isSuccess,
			},
		})
	}

	// Quality descending; equal scores keep insertion order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].QualityScore != candidates[j].QualityScore {
			return candidates[i].QualityScore > candidates[j].QualityScore
		}
		return seqByVector[candidates[i].VectorID] < seqByVector[candidates[j].VectorID]
	})
	if len(candidates) > opts.MaxPerCluster {
		candidates = candidates[:opts.MaxPerCluster]
	}
	if len(candidates) > 0 {
		candidates[0].IsPrimary = true
	}
	return candidates, nil
}

func maxSimilarity(selfID uuid.UUID, embedding []float32, primaries []primaryEmbedding) *float64 {
	var max *float64
	for _, p := range primaries {
		if p.vectorID == selfID {
			continue
		}
		sim := vecmath.Cosine(embedding, p.embedding)
		if max == nil || sim > *max {
			s := sim
			max = &s
		}
	}
	return max
}

// ForScriptGeneration assembles a coverage-first exemplar set: each
// cluster's primary first, then the best remaining candidates until
// maxTotal is reached.
func (s *Service) ForScriptGeneration(ctx context.Context, clusterResultID uuid.UUID, maxTotal int) ([]ScriptCandidate, error) {
	if maxTotal <= 0 {
		maxTotal = DefaultMaxForScripts
	}
	dbc := dbctx.Context{Ctx: ctx}

	primaries, err := s.repRepo.ListPrimary(dbc, clusterResultID)
	if err != nil {
		return nil, fmt.Errorf("load primaries: %w", err)
	}

	var selected []ScriptCandidate
	covered := make(map[int]struct{})
	for _, rep := range primaries {
		if _, ok := covered[rep.ClusterLabel]; ok {
			continue
		}
		cand, bErr := s.buildCandidate(dbc, clusterResultID, rep)
		if bErr != nil {
			return nil, bErr
		}
		selected = append(selected, *cand)
		covered[rep.ClusterLabel] = struct{}{}
		if len(selected) >= maxTotal {
			return selected, nil
		}
	}

	remaining := maxTotal - len(selected)
	if remaining > 0 {
		extras, lErr := s.repRepo.ListNonPrimary(dbc, clusterResultID, remaining)
		if lErr != nil {
			return nil, fmt.Errorf("load additional representatives: %w", lErr)
		}
		for _, rep := range extras {
			cand, bErr := s.buildCandidate(dbc, clusterResultID, rep)
			if bErr != nil {
				return nil, bErr
			}
			selected = append(selected, *cand)
		}
	}
	return selected, nil
}

func (s *Service) buildCandidate(dbc dbctx.Context, clusterResultID uuid.UUID, rep domain.ClusterRepresentative) (*ScriptCandidate, error) {
	v, err := s.vectorRepo.GetByID(dbc, rep.VectorID)
	if err != nil {
		return nil, fmt.Errorf("load representative vector %s: %w", rep.VectorID, err)
	}
	session, err := s.sessionRepo.GetByID(dbc, v.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", v.SessionID, err)
	}
	chars, err := s.Characteristics(dbc.Ctx, clusterResultID, rep.ClusterLabel)
	if err != nil {
		return nil, err
	}

	isSuccess := session.IsSuccess != nil && *session.IsSuccess
	return &ScriptCandidate{
		ClusterLabel: rep.ClusterLabel,
		VectorID:     v.ID,
		Text:         v.ChunkText,
		QualityScore: rep.QualityScore,
		SessionInfo: SessionInfo{
			SessionID:     session.ID,
			CounselorName: session.CounselorName,
			CreatedAt:     session.CreatedAt,
			IsSuccess:     isSuccess,
		},
		Characteristics: *chars,
	}, nil
}

// Characteristics analyzes one cluster's combined text.
func (s *Service) Characteristics(ctx context.Context, clusterResultID uuid.UUID, label int) (*ClusterCharacteristics, error) {
	dbc := dbctx.Context{Ctx: ctx}

	members, err := s.assignRepo.ListByClusterLabel(dbc, clusterResultID, label)
	if err != nil {
		return nil, fmt.Errorf("load cluster %d members: %w", label, err)
	}
	if len(members) == 0 {
		return &ClusterCharacteristics{}, nil
	}

	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.VectorID
	}
	rows, err := s.vectorRepo.ListByIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load cluster %d vectors: %w", label, err)
	}

	var combined string
	var totalLength int
	for i := range rows {
		combined += rows[i].ChunkText + " "
		totalLength += len([]rune(rows[i].ChunkText))
	}

	kws := rankedKeywords(combined, s.vocab)
	top := kws
	if len(top) > 10 {
		top = top[:10]
	}

	return &ClusterCharacteristics{
		ClusterSize:    len(rows),
		AvgTextLength:  float64(totalLength) / float64(len(rows)),
		CommonKeywords: top,
		Description:    describeCluster(kws),
	}, nil
}

// rankedKeywords orders content words by frequency, first appearance
// breaking ties.
func rankedKeywords(text string, vocab *keywords.Config) []string {
	counts := vocab.ExtractKeywordFrequencies(text)
	order := vocab.ExtractKeywords(text)

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

func describeCluster(kws []string) string {
	if len(kws) == 0 {
		return "特徴的なキーワードが見つかりませんでした"
	}
	top := kws
	if len(top) > 5 {
		top = top[:5]
	}
	out := "主要キーワード: "
	for i, k := range top {
		if i > 0 {
			out += "、"
		}
		out += k
	}
	return out
}
