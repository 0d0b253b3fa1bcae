// Package identity decides which global identity key a local track belongs to.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"pawluxe/internal/reid"
	"pawluxe/internal/services"
	"pawluxe/internal/store"
)

// Mode selects how global identity keys are formed.
type Mode string

const (
	ModeByIdentity    Mode = "by-identity"
	ModeByCameraTrack Mode = "by-camera-track"
	ModeAutoResolve   Mode = "auto-resolve"
)

// ParseMode accepts the canonical mode names and their legacy aliases.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "by-identity", "animal":
		return ModeByIdentity, nil
	case "by-camera-track", "camera_track", "":
		return ModeByCameraTrack, nil
	case "auto-resolve", "reid_auto":
		return ModeAutoResolve, nil
	default:
		return "", services.Wrap(services.ErrValidation, "identity", "parse mode",
			fmt.Sprintf("unknown identity mode %q", value), nil)
	}
}

// NormalizeLabel trims a label and converts it to Unicode NFC so visually
// equal labels produce the same key.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

// IdentityKey returns the global key for a named identity.
func IdentityKey(label string) string {
	return "animal:" + NormalizeLabel(label)
}

// CameraTrackKey returns the global key for a local track on one camera.
func CameraTrackKey(cameraID string, localTrackID int) string {
	return fmt.Sprintf("camera:%s:%d", cameraID, localTrackID)
}

// Writer is the slice of a store transaction the policy writes through.
type Writer interface {
	reid.ProfileStore
	EnsureIdentity(ctx context.Context, label string, auto bool) error
	InsertAssociation(ctx context.Context, assoc store.Association) error
}

// Options configure a Policy.
type Options struct {
	Mode           Mode
	IdentityHint   string
	FallbackLabel  string
	MatchThreshold float64
}

// Input describes the first detection of a local track.
type Input struct {
	CameraID     string
	LocalTrackID int
	TrackID      string
	ClassID      int
	Confidence   float64
	Embedding    []float64
	At           time.Time
}

// Assignment is the association written for one track.
type Assignment struct {
	AssociationID string
	GlobalTrackID string
	Label         string
	Resolved      bool
	Created       bool
}

// Policy maps tracks to global identity keys.
type Policy struct {
	mode      Mode
	hint      string
	fallback  string
	threshold float64
	resolver  *reid.Resolver
	newID     func() string
}

// NewPolicy validates options and returns a policy.
func NewPolicy(opts Options) (*Policy, error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	hint := NormalizeLabel(opts.IdentityHint)
	if mode == ModeByIdentity && hint == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "new policy",
			"by-identity mode requires an identity hint", nil)
	}
	if opts.MatchThreshold < 0 || opts.MatchThreshold > 1 {
		return nil, services.Wrap(services.ErrValidation, "identity", "new policy",
			fmt.Sprintf("match threshold %v outside [0,1]", opts.MatchThreshold), nil)
	}
	fallback := NormalizeLabel(opts.FallbackLabel)
	if mode == ModeAutoResolve && fallback == "" && hint == "" {
		return nil, services.Wrap(services.ErrValidation, "identity", "new policy",
			"auto-resolve mode requires a fallback label", nil)
	}
	return &Policy{
		mode:      mode,
		hint:      hint,
		fallback:  fallback,
		threshold: opts.MatchThreshold,
		resolver:  reid.NewResolver(),
		newID:     uuid.NewString,
	}, nil
}

// Mode reports the active mode.
func (p *Policy) Mode() Mode {
	return p.mode
}

// Label returns the identity label attached to associations, which may be empty.
func (p *Policy) Label() string {
	if p.hint != "" {
		return p.hint
	}
	if p.mode == ModeAutoResolve {
		return p.fallback
	}
	return ""
}

// EnsureLabel registers the association label in the identity registry.
// The fallback label is registered as an automatic identity.
func (p *Policy) EnsureLabel(ctx context.Context, w interface {
	EnsureIdentity(ctx context.Context, label string, auto bool) error
}) error {
	label := p.Label()
	if label == "" {
		return nil
	}
	auto := p.hint == "" && p.mode == ModeAutoResolve
	return w.EnsureIdentity(ctx, label, auto)
}

// Assign computes the global key for a track and writes its association.
func (p *Policy) Assign(ctx context.Context, w Writer, in Input) (Assignment, error) {
	if w == nil {
		return Assignment{}, services.Wrap(services.ErrConfiguration, "identity", "assign", "writer unavailable", nil)
	}
	if strings.TrimSpace(in.TrackID) == "" {
		return Assignment{}, services.Wrap(services.ErrValidation, "identity", "assign", "track id is required", nil)
	}

	var out Assignment
	switch p.mode {
	case ModeByIdentity:
		out.GlobalTrackID = IdentityKey(p.hint)
	case ModeAutoResolve:
		if len(in.Embedding) > 0 {
			res, err := p.resolver.Resolve(ctx, w, in.ClassID, in.Embedding, p.threshold)
			if err != nil {
				return Assignment{}, err
			}
			out.GlobalTrackID = res.GlobalTrackID
			out.Resolved = true
			out.Created = res.Created
		} else {
			out.GlobalTrackID = CameraTrackKey(in.CameraID, in.LocalTrackID)
		}
	default:
		out.GlobalTrackID = CameraTrackKey(in.CameraID, in.LocalTrackID)
	}

	out.Label = p.Label()
	if err := p.EnsureLabel(ctx, w); err != nil {
		return Assignment{}, err
	}

	at := in.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	out.AssociationID = p.newID()
	if err := w.InsertAssociation(ctx, store.Association{
		ID:            out.AssociationID,
		GlobalTrackID: out.GlobalTrackID,
		TrackID:       in.TrackID,
		Label:         out.Label,
		Confidence:    in.Confidence,
		CreatedAt:     at,
	}); err != nil {
		return Assignment{}, err
	}
	return out, nil
}
