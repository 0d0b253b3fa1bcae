package export

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

// Source is the read-only store surface the planner needs.
type Source interface {
	AssociationsForGlobalID(ctx context.Context, globalID string) ([]*store.Association, error)
	GetTrack(ctx context.Context, id string) (*store.Track, error)
	ObservationSpan(ctx context.Context, trackID string) (start, end time.Time, ok bool, err error)
	SegmentsOverlapping(ctx context.Context, cameraID string, start, end time.Time) ([]*store.MediaSegment, error)
}

// Planner builds excerpt plans.
type Planner struct {
	source Source
}

// NewPlanner constructs a planner over a store.
func NewPlanner(source Source) *Planner {
	return &Planner{source: source}
}

// Plan computes the chronological excerpts for a global identity key. It
// fails with a not-found error only when the key has no associations; an
// empty excerpt list is a valid result.
func (p *Planner) Plan(ctx context.Context, globalID string, params Params) (Plan, error) {
	globalID = strings.TrimSpace(globalID)
	if globalID == "" {
		return Plan{}, services.Wrap(services.ErrValidation, "export", "plan", "global track id is required", nil)
	}
	if params.PaddingSeconds < 0 || params.MergeGapSeconds < 0 || params.MinDurationSeconds < 0 {
		return Plan{}, services.Wrap(services.ErrValidation, "export", "plan", "plan parameters must be >= 0", nil)
	}

	assocs, err := p.source.AssociationsForGlobalID(ctx, globalID)
	if err != nil {
		return Plan{}, fmt.Errorf("load associations: %w", err)
	}
	if len(assocs) == 0 {
		return Plan{}, services.Wrap(services.ErrNotFound, "export", "plan",
			fmt.Sprintf("no tracks associated with %q", globalID), nil)
	}

	padding := seconds(params.PaddingSeconds)
	seen := make(map[string]struct{}, len(assocs))
	contributing := 0
	var raw []Excerpt
	for _, assoc := range assocs {
		if _, dup := seen[assoc.TrackID]; dup {
			continue
		}
		seen[assoc.TrackID] = struct{}{}

		excerpts, err := p.trackExcerpts(ctx, assoc.TrackID, padding)
		if err != nil {
			return Plan{}, err
		}
		if len(excerpts) > 0 {
			contributing++
			raw = append(raw, excerpts...)
		}
	}

	sort.SliceStable(raw, func(i, j int) bool {
		if !raw[i].ClipStart.Equal(raw[j].ClipStart) {
			return raw[i].ClipStart.Before(raw[j].ClipStart)
		}
		return raw[i].ClipEnd.Before(raw[j].ClipEnd)
	})
	merged := mergeExcerpts(raw, seconds(params.MergeGapSeconds))
	final := dropShort(merged, params.MinDurationSeconds)

	return Plan{
		Excerpts: final,
		Summary:  summarize(globalID, contributing, final, params),
	}, nil
}

func (p *Planner) trackExcerpts(ctx context.Context, trackID string, padding time.Duration) ([]Excerpt, error) {
	track, err := p.source.GetTrack(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("load track %s: %w", trackID, err)
	}
	if track == nil {
		return nil, nil
	}
	first, last, ok, err := p.source.ObservationSpan(ctx, trackID)
	if err != nil {
		return nil, fmt.Errorf("observation span %s: %w", trackID, err)
	}
	if !ok {
		return nil, nil
	}
	spanStart := first.Add(-padding)
	spanEnd := last.Add(padding)

	segments, err := p.source.SegmentsOverlapping(ctx, track.CameraID, spanStart, spanEnd)
	if err != nil {
		return nil, fmt.Errorf("segments for %s: %w", track.CameraID, err)
	}
	var out []Excerpt
	for _, seg := range segments {
		if seg.EndTS.IsZero() {
			continue
		}
		clipStart := later(seg.StartTS, spanStart)
		clipEnd := earlier(seg.EndTS, spanEnd)
		if !clipEnd.After(clipStart) {
			continue
		}
		out = append(out, Excerpt{
			CameraID:        track.CameraID,
			SegmentID:       seg.ID,
			SegmentPath:     seg.Path,
			ClipStart:       clipStart,
			ClipEnd:         clipEnd,
			OffsetSeconds:   clipStart.Sub(seg.StartTS).Seconds(),
			DurationSeconds: clipEnd.Sub(clipStart).Seconds(),
		})
	}
	return out, nil
}

// mergeExcerpts folds each excerpt into the one right before it when both
// come from the same segment and the gap between them is at most gap. An
// excerpt from another segment in between keeps them apart. Input must be
// sorted by clip start.
func mergeExcerpts(sorted []Excerpt, gap time.Duration) []Excerpt {
	out := make([]Excerpt, 0, len(sorted))
	for _, e := range sorted {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.SegmentID == e.SegmentID && e.ClipStart.Sub(prev.ClipEnd) <= gap {
				if e.ClipEnd.After(prev.ClipEnd) {
					prev.ClipEnd = e.ClipEnd
				}
				prev.DurationSeconds = prev.ClipEnd.Sub(prev.ClipStart).Seconds()
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

func dropShort(excerpts []Excerpt, minDuration float64) []Excerpt {
	out := make([]Excerpt, 0, len(excerpts))
	for _, e := range excerpts {
		if e.DurationSeconds < minDuration {
			continue
		}
		out = append(out, e)
	}
	return out
}

func summarize(globalID string, tracks int, excerpts []Excerpt, params Params) Summary {
	segments := make(map[string]struct{})
	var cameras []string
	for _, e := range excerpts {
		segments[e.SegmentID] = struct{}{}
		if !slices.Contains(cameras, e.CameraID) {
			cameras = append(cameras, e.CameraID)
		}
	}
	sort.Strings(cameras)
	if cameras == nil {
		cameras = []string{}
	}
	return Summary{
		GlobalTrackID:        globalID,
		TrackCount:           tracks,
		SegmentCount:         len(segments),
		ExcerptCount:         len(excerpts),
		TotalDurationSeconds: TotalDuration(excerpts),
		CameraIDs:            cameras,
		PaddingSeconds:       params.PaddingSeconds,
		MergeGapSeconds:      params.MergeGapSeconds,
		MinDurationSeconds:   params.MinDurationSeconds,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
