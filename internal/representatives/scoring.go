package representatives

import (
	"github.com/soratone/counsel-backend/internal/keywords"
)

// Weighting of the composite representative quality score.
const (
	weightCentroidProximity = 0.25
	weightSuccessRate       = 0.30
	weightTextLength        = 0.15
	weightNovelty           = 0.15
	weightContentQuality    = 0.15
)

// QualityInputs are the raw signals behind one quality score.
type QualityInputs struct {
	// DistanceToCentroid is nil when the clustering run recorded none.
	DistanceToCentroid *float64
	SessionIsSuccess   bool
	Text               string
	// MaxSimilarityToPrimaries is the highest cosine similarity against
	// the established primary exemplars; nil when there are none.
	MaxSimilarityToPrimaries *float64
}

// QualityScore combines cluster representativeness, outcome, text
// length, novelty and keyword density into one [0,1] score.
func QualityScore(in QualityInputs, vocab *keywords.Config) float64 {
	centroidScore := 0.5
	if in.DistanceToCentroid != nil {
		centroidScore = 1 - *in.DistanceToCentroid/2.0
		if centroidScore < 0 {
			centroidScore = 0
		}
	}

	successScore := 0.0
	if in.SessionIsSuccess {
		successScore = 1.0
	}

	noveltyScore := 1.0
	if in.MaxSimilarityToPrimaries != nil {
		noveltyScore = 1.0 - *in.MaxSimilarityToPrimaries
		if noveltyScore < 0 {
			noveltyScore = 0
		}
	}

	total := centroidScore*weightCentroidProximity +
		successScore*weightSuccessRate +
		lengthScore(len([]rune(in.Text)))*weightTextLength +
		noveltyScore*weightNovelty +
		contentQualityScore(in.Text, vocab)*weightContentQuality

	if total < 0 {
		return 0
	}
	if total > 1 {
		return 1
	}
	return total
}

// lengthScore rewards chunk texts in the 100-500 character band.
func lengthScore(textLength int) float64 {
	const idealMin, idealMax = 100, 500

	switch {
	case textLength >= idealMin && textLength <= idealMax:
		return 1.0
	case textLength < idealMin:
		score := float64(textLength) / idealMin
		if score < 0.3 {
			return 0.3
		}
		return score
	default:
		excess := float64(textLength-idealMax) / idealMax
		if excess > 0.7 {
			excess = 0.7
		}
		score := 1.0 - excess
		if score < 0.3 {
			return 0.3
		}
		return score
	}
}

// contentQualityScore measures domain keyword density per 100
// characters: important terms help most, positive tone helps, negative
// tone subtracts.
func contentQualityScore(text string, vocab *keywords.Config) float64 {
	textLength := len([]rune(text))
	norm := float64(textLength) / 100.0
	if norm < 1 {
		norm = 1
	}

	importantDensity := float64(keywords.CountContaining(text, vocab.Important)) / norm
	positiveDensity := float64(keywords.CountContaining(text, vocab.Positive)) / norm
	negativeDensity := float64(keywords.CountContaining(text, vocab.Negative)) / norm

	score := importantDensity*0.5 + positiveDensity*0.4 - negativeDensity*0.1
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
