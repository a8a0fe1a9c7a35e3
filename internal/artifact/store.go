// internal/artifact/store.go
package artifact

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/lib/pq"

	"match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/metrics"
)

const recordColumns = `kind, subject_id, target_id, status, generation, payload, error, started_at, completed_at, updated_at`

// Store persists artifacts in the generation_artifacts table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r           Record
		payload     []byte
		errText     sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	if err := row.Scan(&r.Kind, &r.SubjectID, &r.TargetID, &r.Status, &r.Generation,
		&payload, &errText, &startedAt, &completedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		r.Payload = payload
	}
	r.Error = errText.String
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

// Claim moves the artifact into its in-flight state, creating it when absent.
// Only an initial or failed record can be claimed; each claim increments the
// generation, which later transitions must present.
func (s *Store) Claim(ctx context.Context, key Key) (Claim, error) {
	if err := key.Validate(); err != nil {
		return Claim{}, errors.NewValidationFailedError(err.Error())
	}
	lc := key.Kind.Lifecycle()
	now := s.now()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO generation_artifacts (kind, subject_id, target_id, status, generation, started_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (kind, subject_id, target_id) DO UPDATE
		SET status = EXCLUDED.status,
		    generation = generation_artifacts.generation + 1,
		    error = NULL,
		    started_at = EXCLUDED.started_at,
		    completed_at = NULL,
		    updated_at = EXCLUDED.updated_at
		WHERE generation_artifacts.status IN ($6, $7)
		RETURNING `+recordColumns,
		key.Kind, key.SubjectID, key.TargetID, lc.InFlight, now, lc.Initial, lc.Failed)

	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		current, getErr := s.Get(ctx, key)
		if getErr != nil {
			return Claim{}, getErr
		}
		return Claim{Claimed: false, Record: current}, nil
	}
	if err != nil {
		return Claim{}, errors.NewDatabaseQueryFailedError("claim artifact", err)
	}

	metrics.ArtifactTransitions.WithLabelValues(string(key.Kind), string(lc.InFlight)).Inc()
	return Claim{Claimed: true, Record: rec}, nil
}

// Complete stores payload and marks the artifact succeeded. It returns
// ErrStaleTransition unless the record is in flight under generation.
func (s *Store) Complete(ctx context.Context, key Key, generation int64, payload []byte) error {
	lc := key.Kind.Lifecycle()
	now := s.now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts
		SET status = $1, payload = $2, error = NULL, completed_at = $3, updated_at = $3
		WHERE kind = $4 AND subject_id = $5 AND target_id = $6 AND status = $7 AND generation = $8`,
		lc.Succeeded, payload, now, key.Kind, key.SubjectID, key.TargetID, lc.InFlight, generation)
	if err != nil {
		return errors.NewDatabaseQueryFailedError("complete artifact", err)
	}
	return s.transitioned(res, key, lc.Succeeded)
}

// Fail records reason and marks the artifact failed, under the same guard as
// Complete. A failed artifact can be claimed again.
func (s *Store) Fail(ctx context.Context, key Key, generation int64, reason string) error {
	lc := key.Kind.Lifecycle()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts
		SET status = $1, error = $2, updated_at = $3
		WHERE kind = $4 AND subject_id = $5 AND target_id = $6 AND status = $7 AND generation = $8`,
		lc.Failed, reason, s.now(), key.Kind, key.SubjectID, key.TargetID, lc.InFlight, generation)
	if err != nil {
		return errors.NewDatabaseQueryFailedError("fail artifact", err)
	}
	return s.transitioned(res, key, lc.Failed)
}

// Reset returns an artifact to its initial state, keeping the last payload.
// An in-flight record is reset as well: the generation moves on, so the
// running worker's Complete or Fail becomes a stale transition and its result
// (computed from the old inputs) is dropped. It reports false when there was
// nothing to reset.
func (s *Store) Reset(ctx context.Context, key Key) (bool, error) {
	lc := key.Kind.Lifecycle()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts
		SET status = $1, error = NULL, generation = generation + 1, updated_at = $2
		WHERE kind = $3 AND subject_id = $4 AND target_id = $5 AND status IN ($6, $7, $8)`,
		lc.Initial, s.now(), key.Kind, key.SubjectID, key.TargetID, lc.Succeeded, lc.Failed, lc.InFlight)
	if err != nil {
		return false, errors.NewDatabaseQueryFailedError("reset artifact", err)
	}
	if err := s.transitioned(res, key, lc.Initial); err != nil {
		if stderrors.Is(err, ErrStaleTransition) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Touch refreshes updated_at of an in-flight record so the sweeper does not
// take a job that is queued or waiting on a rate limiter for a stuck one.
// It returns ErrStaleTransition once generation is no longer in flight.
func (s *Store) Touch(ctx context.Context, key Key, generation int64) error {
	lc := key.Kind.Lifecycle()

	res, err := s.db.ExecContext(ctx, `
		UPDATE generation_artifacts
		SET updated_at = $1
		WHERE kind = $2 AND subject_id = $3 AND target_id = $4 AND status = $5 AND generation = $6`,
		s.now(), key.Kind, key.SubjectID, key.TargetID, lc.InFlight, generation)
	if err != nil {
		return errors.NewDatabaseQueryFailedError("touch artifact", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseQueryFailedError("artifact rows affected", err)
	}
	if n == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (s *Store) transitioned(res sql.Result, key Key, to Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseQueryFailedError("artifact rows affected", err)
	}
	if n == 0 {
		return ErrStaleTransition
	}
	metrics.ArtifactTransitions.WithLabelValues(string(key.Kind), string(to)).Inc()
	return nil
}

func (s *Store) Get(ctx context.Context, key Key) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM generation_artifacts
		WHERE kind = $1 AND subject_id = $2 AND target_id = $3`,
		key.Kind, key.SubjectID, key.TargetID)

	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("get artifact", err)
	}
	return rec, nil
}

// ListByTarget returns every artifact of kind generated for targetID, newest first.
func (s *Store) ListByTarget(ctx context.Context, kind Kind, targetID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM generation_artifacts
		WHERE kind = $1 AND target_id = $2
		ORDER BY updated_at DESC`,
		kind, targetID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list artifacts", err)
	}
	return collect(rows)
}

// ListStuck returns in-flight artifacts not updated since before cutoff.
func (s *Store) ListStuck(ctx context.Context, cutoff time.Time, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM generation_artifacts
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		pq.Array(InFlightStatuses()), cutoff, limit)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list stuck artifacts", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*Record, error) {
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailedError("scan artifact", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("iterate artifacts", err)
	}
	return out, nil
}
