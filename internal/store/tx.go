package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tx is one unit of work against the store. Writes are buffered in memory
// and applied in a single short write transaction on Commit, so the SQLite
// write lock is only held while a batch is flushed. Ingestion opens one Tx
// per commit interval.
type Tx struct {
	store    *Store
	ctx      context.Context
	ops      []txOp
	profiles []pendingProfile
	done     bool
}

type txOp func(ctx context.Context, tx *sql.Tx) error

type pendingProfile struct {
	profile  Profile
	inserted bool
}

// Begin starts a unit of work. The batch is not bound to ctx cancellation;
// only Commit or Rollback end it, so a worker can still commit its last batch
// after an interrupt.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("begin tx: store is not open")
	}
	return &Tx{store: s, ctx: context.WithoutCancel(ensureContext(ctx))}, nil
}

// Len reports how many writes are waiting for Commit.
func (t *Tx) Len() int {
	if t == nil {
		return 0
	}
	return len(t.ops)
}

// Commit applies every buffered write in one transaction. A busy database is
// retried with backoff; the whole batch is rolled back and replayed each time.
func (t *Tx) Commit() error {
	if t == nil || t.done {
		return nil
	}
	t.done = true
	if len(t.ops) == 0 {
		return nil
	}
	err := retryOnBusy(t.ctx, func() error {
		tx, err := t.store.db.BeginTx(t.ctx, nil)
		if err != nil {
			return err
		}
		for _, op := range t.ops {
			if err := op(t.ctx, tx); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
	t.ops = nil
	t.profiles = nil
	if err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback discards the buffered writes. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if t == nil || t.done {
		return nil
	}
	t.done = true
	t.ops = nil
	t.profiles = nil
	return nil
}

func (t *Tx) add(op txOp) error {
	if t == nil || t.done {
		return sql.ErrTxDone
	}
	t.ops = append(t.ops, op)
	return nil
}

func (t *Tx) pendingProfile(globalID string) *pendingProfile {
	for i := range t.profiles {
		if t.profiles[i].profile.GlobalTrackID == globalID {
			return &t.profiles[i]
		}
	}
	return nil
}

// InsertTrack creates a track row.
func (t *Tx) InsertTrack(ctx context.Context, track Track) error {
	return t.add(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tracks (id, camera_id, start_ts, end_ts, quality_score) VALUES (?, ?, ?, ?, ?)`,
			track.ID, track.CameraID, formatTime(track.StartTS), nullableTime(track.EndTS), track.QualityScore,
		); err != nil {
			return fmt.Errorf("insert track: %w", err)
		}
		return nil
	})
}

// ExtendTrack moves the end of a track and replaces its quality score.
func (t *Tx) ExtendTrack(ctx context.Context, trackID string, end time.Time, quality float64) error {
	return t.add(func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tracks SET end_ts = ?, quality_score = ? WHERE id = ?`,
			formatTime(end), quality, trackID,
		)
		if err != nil {
			return fmt.Errorf("extend track: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("extend track: track %s not found", trackID)
		}
		return nil
	})
}

// InsertObservation appends one observation to a track.
func (t *Tx) InsertObservation(ctx context.Context, obs Observation) error {
	bbox, err := encodeBBox(obs.BBox)
	if err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return t.add(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO track_observations (id, track_id, ts, bbox, appearance_ref) VALUES (?, ?, ?, ?, ?)`,
			obs.ID, obs.TrackID, formatTime(obs.TS), bbox, nullableString(obs.AppearanceRef),
		); err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}
		return nil
	})
}

// InsertAssociation binds a track to a global identity key.
func (t *Tx) InsertAssociation(ctx context.Context, assoc Association) error {
	return t.add(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO associations (id, global_track_id, track_id, label, confidence, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			assoc.ID, assoc.GlobalTrackID, assoc.TrackID, nullableString(assoc.Label), assoc.Confidence, formatTime(assoc.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert association: %w", err)
		}
		return nil
	})
}

// EnsureIdentity creates the identity label when it does not exist yet.
func (t *Tx) EnsureIdentity(ctx context.Context, label string, auto bool) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return errors.New("ensure identity: label is empty")
	}
	name := label
	if auto {
		name = "Auto-" + label
	}
	created := time.Now()
	return t.add(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identities (label, name, auto, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(label) DO NOTHING`,
			label, name, boolToInt(auto), formatTime(created),
		); err != nil {
			return fmt.Errorf("ensure identity: %w", err)
		}
		return nil
	})
}

// ProfilesByClass returns every profile of a class in a stable scan order:
// committed profiles by rowid, then profiles inserted earlier in this Tx.
// Pending updates replace the committed values.
func (t *Tx) ProfilesByClass(ctx context.Context, classID int) ([]Profile, error) {
	rows, err := t.store.db.QueryContext(ensureContext(ctx),
		`SELECT global_track_id, class_id, centroid, sample_count, updated_at
         FROM global_track_profiles WHERE class_id = ? ORDER BY rowid`, classID)
	if err != nil {
		return nil, fmt.Errorf("profiles by class: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		if pending := t.pendingProfile(profile.GlobalTrackID); pending != nil {
			*profile = pending.profile
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("profiles by class: %w", err)
	}
	for _, pending := range t.profiles {
		if pending.inserted && pending.profile.ClassID == classID {
			profiles = append(profiles, pending.profile)
		}
	}
	return profiles, nil
}

// InsertProfile stores a new identity profile.
func (t *Tx) InsertProfile(ctx context.Context, profile Profile) error {
	centroid, err := encodeVector(profile.Centroid)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if t.pendingProfile(profile.GlobalTrackID) != nil {
		return fmt.Errorf("insert profile: %s already written in this batch", profile.GlobalTrackID)
	}
	if err := t.add(func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO global_track_profiles (global_track_id, class_id, centroid, sample_count, updated_at) VALUES (?, ?, ?, ?, ?)`,
			profile.GlobalTrackID, profile.ClassID, centroid, profile.SampleCount, formatTime(profile.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}
	t.profiles = append(t.profiles, pendingProfile{profile: cloneProfile(profile), inserted: true})
	return nil
}

// UpdateProfile replaces the centroid, count and timestamp of a profile.
// The sample count may only grow.
func (t *Tx) UpdateProfile(ctx context.Context, profile Profile) error {
	centroid, err := encodeVector(profile.Centroid)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	current, err := t.currentSampleCount(ctx, profile.GlobalTrackID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if current < 0 || profile.SampleCount <= current {
		return fmt.Errorf("update profile: %s not found or sample count did not grow", profile.GlobalTrackID)
	}
	if err := t.add(func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE global_track_profiles SET centroid = ?, sample_count = ?, updated_at = ?
             WHERE global_track_id = ? AND sample_count < ?`,
			centroid, profile.SampleCount, formatTime(profile.UpdatedAt), profile.GlobalTrackID, profile.SampleCount,
		)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update profile: %s not found or sample count did not grow", profile.GlobalTrackID)
		}
		return nil
	}); err != nil {
		return err
	}
	if pending := t.pendingProfile(profile.GlobalTrackID); pending != nil {
		pending.profile = cloneProfile(profile)
	} else {
		t.profiles = append(t.profiles, pendingProfile{profile: cloneProfile(profile)})
	}
	return nil
}

// currentSampleCount returns the sample count this Tx would observe for a
// profile, or -1 when the profile does not exist.
func (t *Tx) currentSampleCount(ctx context.Context, globalID string) (int, error) {
	if pending := t.pendingProfile(globalID); pending != nil {
		return pending.profile.SampleCount, nil
	}
	var count int
	err := t.store.db.QueryRowContext(ensureContext(ctx),
		`SELECT sample_count FROM global_track_profiles WHERE global_track_id = ?`, globalID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func cloneProfile(p Profile) Profile {
	p.Centroid = append([]float64(nil), p.Centroid...)
	return p
}
