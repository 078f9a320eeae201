package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CounselingSession is one recorded counseling appointment. Audio handling
// and the transcription job itself live outside this service; the analytical
// pipeline reads the finished transcription and the label fields.
type CounselingSession struct {
	ID                  uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FileURL             string    `gorm:"size:500;not null" json:"file_url"`
	FileName            string    `gorm:"size:255;not null" json:"file_name"`
	FileSize            int64     `gorm:"not null" json:"file_size"`
	FileType            string    `gorm:"size:50;not null" json:"file_type"`
	Duration            *float64  `json:"duration,omitempty"`
	Transcription       string    `gorm:"type:text" json:"transcription,omitempty"`
	IsSuccess           *bool     `json:"is_success,omitempty"`
	CounselorName       string    `gorm:"size:255" json:"counselor_name"`
	Comment             string    `gorm:"type:text" json:"comment"`
	TranscriptionStatus string    `gorm:"size:20;default:pending" json:"transcription_status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// SuccessVector is an embedded chunk of a successful conversation.
// Immutable after creation except for metadata enrichment.
type SuccessVector struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	ChunkText  string         `gorm:"type:text;not null" json:"chunk_text"`
	Embedding  datatypes.JSON `gorm:"not null" json:"embedding"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	ChunkIndex int            `gorm:"not null;default:0" json:"chunk_index"`
	// Seq is a monotonically increasing insertion counter; similarity search
	// breaks score ties on it for deterministic ordering.
	Seq       int64     `gorm:"autoIncrement;uniqueIndex" json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// ClusterResult records one clustering run. Immutable once written.
type ClusterResult struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Algorithm       string         `gorm:"type:text;not null" json:"algorithm"`
	ClusterCount    int            `gorm:"not null" json:"cluster_count"`
	Parameters      datatypes.JSON `json:"parameters,omitempty"`
	SilhouetteScore float64        `json:"silhouette_score"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ClusterAssignment maps a vector to a cluster label within one run.
// Label -1 marks a noise point (density algorithms only).
type ClusterAssignment struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	VectorID           uuid.UUID `gorm:"type:uuid;not null;index" json:"vector_id"`
	ClusterResultID    uuid.UUID `gorm:"type:uuid;not null;index" json:"cluster_result_id"`
	ClusterLabel       int       `gorm:"not null" json:"cluster_label"`
	DistanceToCentroid *float64  `json:"distance_to_centroid,omitempty"`
}

// ClusterRepresentative is derived data: the selected exemplars of one
// clustering run. A re-run replaces the whole set for its cluster_result_id.
type ClusterRepresentative struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClusterResultID    uuid.UUID `gorm:"type:uuid;not null;index" json:"cluster_result_id"`
	VectorID           uuid.UUID `gorm:"type:uuid;not null;index" json:"vector_id"`
	ClusterLabel       int       `gorm:"not null" json:"cluster_label"`
	QualityScore       float64   `gorm:"not null" json:"quality_score"`
	DistanceToCentroid float64   `gorm:"not null" json:"distance_to_centroid"`
	IsPrimary          bool      `gorm:"default:false" json:"is_primary"`
	CreatedAt          time.Time `json:"created_at"`
}

// AnomalyResult is derived, fully recomputable outlier data.
type AnomalyResult struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	VectorID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"vector_id"`
	Algorithm    string         `gorm:"type:text;not null" json:"algorithm"`
	AnomalyScore float64        `gorm:"not null" json:"anomaly_score"`
	IsAnomaly    bool           `gorm:"not null" json:"is_anomaly"`
	Parameters   datatypes.JSON `json:"parameters,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// GeneratedScript is a persisted improvement script with its quality report.
type GeneratedScript struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string         `gorm:"size:255" json:"title"`
	Content         datatypes.JSON `gorm:"not null" json:"content"`
	Status          string         `gorm:"size:20;default:draft" json:"status"`
	QualityMetrics  datatypes.JSON `json:"quality_metrics,omitempty"`
	ClusterResultID *uuid.UUID     `gorm:"type:uuid;index" json:"cluster_result_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// EncodeVector serializes an embedding for the JSON column.
func EncodeVector(v []float32) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeVector deserializes an embedding column. Returns nil for empty input.
func DecodeVector(raw datatypes.JSON) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []float32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
