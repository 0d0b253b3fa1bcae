// Package reid matches appearance embeddings against stored identity profiles.
//
// Each profile holds the running mean of every embedding attributed to it.
// A query either joins the most similar profile of its class (when the
// similarity clears the threshold) or founds a new one. Profiles are never
// merged or deleted.
package reid

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

// KeyPrefix prefixes every auto-resolved global identity key.
const KeyPrefix = "reid:"

// ProfileStore is the slice of a store transaction the resolver needs.
type ProfileStore interface {
	ProfilesByClass(ctx context.Context, classID int) ([]store.Profile, error)
	InsertProfile(ctx context.Context, profile store.Profile) error
	UpdateProfile(ctx context.Context, profile store.Profile) error
}

// Result describes the outcome of one resolution.
type Result struct {
	GlobalTrackID string
	Similarity    float64
	Created       bool
	SampleCount   int
}

// Resolver assigns embeddings to profiles.
type Resolver struct {
	now   func() time.Time
	newID func() string
}

// NewResolver constructs a resolver using wall-clock time and random uuids.
func NewResolver() *Resolver {
	return &Resolver{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Resolve returns the global identity key for an embedding of the given class.
// A candidate scoring -1 (zero norm) never matches, whatever the threshold.
func (r *Resolver) Resolve(ctx context.Context, profiles ProfileStore, classID int, embedding []float64, threshold float64) (Result, error) {
	if len(embedding) == 0 {
		return Result{}, services.Wrap(services.ErrValidation, "reid", "resolve", "embedding is empty", nil)
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return Result{}, services.Wrap(services.ErrValidation, "reid", "resolve",
			fmt.Sprintf("match threshold %v outside [-1, 1]", threshold), nil)
	}
	if profiles == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "reid", "resolve", "profile store unavailable", nil)
	}

	candidates, err := profiles.ProfilesByClass(ctx, classID)
	if err != nil {
		return Result{}, fmt.Errorf("load profiles: %w", err)
	}

	bestIdx := -1
	bestScore := math.Inf(-1)
	for i := range candidates {
		// centroid dimension is fixed per profile
		if len(candidates[i].Centroid) != len(embedding) {
			continue
		}
		score := CosineSimilarity(embedding, candidates[i].Centroid)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	now := r.now()
	if bestIdx >= 0 && bestScore > -1 && bestScore >= threshold {
		match := candidates[bestIdx]
		updated := store.Profile{
			GlobalTrackID: match.GlobalTrackID,
			ClassID:       match.ClassID,
			Centroid:      IncrementalMean(match.Centroid, match.SampleCount, embedding),
			SampleCount:   match.SampleCount + 1,
			UpdatedAt:     now,
		}
		if err := profiles.UpdateProfile(ctx, updated); err != nil {
			return Result{}, fmt.Errorf("update profile: %w", err)
		}
		return Result{
			GlobalTrackID: updated.GlobalTrackID,
			Similarity:    bestScore,
			SampleCount:   updated.SampleCount,
		}, nil
	}

	centroid := make([]float64, len(embedding))
	copy(centroid, embedding)
	created := store.Profile{
		GlobalTrackID: KeyPrefix + r.newID(),
		ClassID:       classID,
		Centroid:      centroid,
		SampleCount:   1,
		UpdatedAt:     now,
	}
	if err := profiles.InsertProfile(ctx, created); err != nil {
		return Result{}, fmt.Errorf("insert profile: %w", err)
	}
	result := Result{GlobalTrackID: created.GlobalTrackID, Created: true, SampleCount: 1}
	if bestIdx >= 0 {
		result.Similarity = bestScore
	}
	return result, nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or -1
// when either vector has zero norm or the dimensions differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IncrementalMean folds sample into a mean of n vectors: (mean*n + sample)/(n+1).
func IncrementalMean(mean []float64, n int, sample []float64) []float64 {
	out := make([]float64, len(mean))
	if n < 0 {
		n = 0
	}
	weight := float64(n)
	for i := range mean {
		var v float64
		if i < len(sample) {
			v = sample[i]
		}
		out[i] = (mean[i]*weight + v) / (weight + 1)
	}
	return out
}
