// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	apperrors "match-pipeline/internal/common/errors"
	"match-pipeline/internal/common/database"
	"match-pipeline/internal/models"
)

const jobColumns = `j.id, j.company_id, j.title, j.description, j.responsibilities, j.required_skills,
	j.experience_level, j.employment_type, j.qualifications, j.fields_of_study, j.salary, j.location,
	j.status, j.is_deleted, j.ranking_config, j.embedding, j.embedding_model, j.embedding_dirty,
	j.created_at, j.updated_at`

const profileColumns = `p.id, p.user_id, p.headline, p.summary, p.skills, p.experience, p.education,
	p.total_years_of_experience, p.employment_type, p.location, p.job_preference, p.is_deleted,
	p.embedding, p.embedding_model, p.embedding_dirty, p.embedding_text, p.updated_at`

const applicationColumns = `a.id, a.job_id, a.applicant_id, a.status, a.match_score, a.ranking_score,
	a.ai_notes, a.applied_at, a.status_history`

// Store reads and writes jobs, profiles and applications in Postgres.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// ==========================
// Reads
// ==========================

func (s *Store) FindJob(ctx context.Context, jobID string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs j WHERE j.id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewEntityNotFoundError("job", jobID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("find job", err)
	}
	return job, nil
}

func (s *Store) FindProfile(ctx context.Context, profileID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles p WHERE p.id = $1`
	return s.findProfile(ctx, query, profileID, "profile")
}

// FindProfileByUser loads the profile owned by userID.
func (s *Store) FindProfileByUser(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles p WHERE p.user_id = $1 AND p.is_deleted = false`
	return s.findProfile(ctx, query, userID, "profile for user")
}

// FindProfileVersionByUser reads only the columns that move when the profile
// is edited or marked dirty. ProfileCache checks it on every hit.
func (s *Store) FindProfileVersionByUser(ctx context.Context, userID string) (models.ProfileVersion, error) {
	query := `SELECT p.updated_at, p.embedding_dirty FROM profiles p WHERE p.user_id = $1 AND p.is_deleted = false`

	var v models.ProfileVersion
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&v.UpdatedAt, &v.EmbeddingDirty)
	if errors.Is(err, sql.ErrNoRows) {
		return v, apperrors.NewEntityNotFoundError("profile for user", userID)
	}
	if err != nil {
		return v, apperrors.NewDatabaseQueryFailedError("find profile version", err)
	}
	return v, nil
}

func (s *Store) findProfile(ctx context.Context, query, id, entity string) (*models.Profile, error) {
	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewEntityNotFoundError(entity, id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("find profile", err)
	}
	return profile, nil
}

// FindApplicationBundle loads an application together with its job and the
// applicant's profile in one round trip.
func (s *Store) FindApplicationBundle(ctx context.Context, applicationID string) (*models.ApplicationBundle, error) {
	query := `SELECT ` + applicationColumns + `, ` + jobColumns + `, ` + profileColumns + `
		FROM applications a
		JOIN jobs j ON j.id = a.job_id
		JOIN profiles p ON p.user_id = a.applicant_id AND p.is_deleted = false
		WHERE a.id = $1`

	var bundle models.ApplicationBundle
	app := applicationDest{}
	job := jobDest{}
	profile := profileDest{}

	dest := append(app.targets(), job.targets()...)
	dest = append(dest, profile.targets()...)

	err := s.db.QueryRowContext(ctx, query, applicationID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewEntityNotFoundError("application", applicationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("find application bundle", err)
	}

	if bundle.Application, err = app.build(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("decode application", err)
	}
	if bundle.Job, err = job.build(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("decode job", err)
	}
	if bundle.Profile, err = profile.build(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("decode profile", err)
	}
	return &bundle, nil
}

// ListApplicationsForRerank returns every application of jobID that already
// has a match score, with the applicant profile ranking reads.
func (s *Store) ListApplicationsForRerank(ctx context.Context, jobID string) ([]models.RerankCandidate, error) {
	query := `SELECT a.id, a.match_score, ` + profileColumns + `
		FROM applications a
		JOIN profiles p ON p.user_id = a.applicant_id AND p.is_deleted = false
		WHERE a.job_id = $1 AND a.match_score IS NOT NULL
		ORDER BY a.applied_at`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list applications for rerank", err)
	}
	defer rows.Close()

	var out []models.RerankCandidate
	for rows.Next() {
		var c models.RerankCandidate
		profile := profileDest{}
		dest := append([]interface{}{&c.ApplicationID, &c.MatchScore}, profile.targets()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError("scan rerank candidate", err)
		}
		if c.Profile, err = profile.build(); err != nil {
			return nil, apperrors.NewDatabaseQueryFailedError("decode profile", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseQueryFailedError("list applications for rerank", err)
	}
	return out, nil
}

// ==========================
// Writes
// ==========================

// SaveJobEmbedding stores the vector and model tag and clears the dirty flag.
// The write only lands if the row still carries readAt, the updated_at the
// embedded text was read at; an edit in between leaves the job dirty.
func (s *Store) SaveJobEmbedding(ctx context.Context, jobID string, embedding []float32, model string, readAt time.Time) error {
	query := `UPDATE jobs SET embedding = $1, embedding_model = $2, embedding_dirty = false, updated_at = $3
		WHERE id = $4 AND updated_at = $5`
	return s.saveEmbedding(ctx, query, "job", jobID, embedding, model, readAt)
}

// SaveProfileEmbedding is SaveJobEmbedding for profiles.
func (s *Store) SaveProfileEmbedding(ctx context.Context, profileID string, embedding []float32, model string, readAt time.Time) error {
	query := `UPDATE profiles SET embedding = $1, embedding_model = $2, embedding_dirty = false, updated_at = $3
		WHERE id = $4 AND updated_at = $5`
	return s.saveEmbedding(ctx, query, "profile", profileID, embedding, model, readAt)
}

func (s *Store) saveEmbedding(ctx context.Context, query, entity, id string, embedding []float32, model string, readAt time.Time) error {
	if len(embedding) == 0 {
		return apperrors.NewEmbeddingFailedError(fmt.Errorf("empty embedding for %s %s", entity, id))
	}
	res, err := s.db.ExecContext(ctx, query, pgvector.NewVector(embedding), model, s.now().UTC(), id, readAt)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("save "+entity+" embedding", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("save "+entity+" embedding", err)
	}
	if n == 0 {
		// either the row is gone or it was edited after the read
		return s.embeddingConflict(ctx, entity, id)
	}
	return nil
}

// embeddingConflict tells a deleted row (terminal) from an edited one
// (retryable: the next attempt embeds the new text).
func (s *Store) embeddingConflict(ctx context.Context, entity, id string) error {
	table := "jobs"
	if entity == "profile" {
		table = "profiles"
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("check "+entity+" exists", err)
	}
	if !exists {
		return apperrors.NewEntityNotFoundError(entity, id)
	}
	return apperrors.NewConcurrentUpdateError(entity, id)
}

// SaveApplicationScores writes matchScore, rankingScore and AI notes in one
// statement so rankingScore never exists without its matchScore.
func (s *Store) SaveApplicationScores(ctx context.Context, applicationID string, matchScore, rankingScore float64, notes []string) error {
	query := `UPDATE applications SET match_score = $1, ranking_score = $2, ai_notes = $3, updated_at = $4 WHERE id = $5`

	res, err := s.db.ExecContext(ctx, query, matchScore, rankingScore, pq.Array(notes), s.now().UTC(), applicationID)
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("save application scores", err)
	}
	return requireRow(res, "application", applicationID)
}

// RankingUpdate is one rewritten ranking score.
type RankingUpdate struct {
	ApplicationID string
	RankingScore  float64
}

// BulkUpdateRankingScores rewrites ranking scores of jobID's applications in
// one transaction. Rows without a match score are left alone.
func (s *Store) BulkUpdateRankingScores(ctx context.Context, jobID string, updates []RankingUpdate) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	var total int64
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE applications SET ranking_score = $1, updated_at = $2
			 WHERE id = $3 AND job_id = $4 AND match_score IS NOT NULL`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := s.now().UTC()
		for _, u := range updates {
			res, err := stmt.ExecContext(ctx, u.RankingScore, now, u.ApplicationID, jobID)
			if err != nil {
				return fmt.Errorf("update application %s: %w", u.ApplicationID, err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.NewDatabaseQueryFailedError("bulk update ranking scores", err)
	}
	return total, nil
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseQueryFailedError("rows affected", err)
	}
	if n == 0 {
		return apperrors.NewEntityNotFoundError(entity, id)
	}
	return nil
}

// ==========================
// Row decoding
// ==========================

type jobDest struct {
	job              models.Job
	responsibilities pq.StringArray
	skills           pq.StringArray
	fields           pq.StringArray
	qualifications   sql.NullString
	salary           []byte
	location         []byte
	ranking          []byte
	embedding        *pgvector.Vector
	embeddingModel   sql.NullString
}

func (d *jobDest) targets() []interface{} {
	j := &d.job
	return []interface{}{
		&j.ID, &j.CompanyID, &j.Title, &j.Description, &d.responsibilities, &d.skills,
		&j.ExperienceLevel, &j.EmploymentType, &d.qualifications, &d.fields, &d.salary, &d.location,
		&j.Status, &j.IsDeleted, &d.ranking, &d.embedding, &d.embeddingModel, &j.EmbeddingDirty,
		&j.CreatedAt, &j.UpdatedAt,
	}
}

func (d *jobDest) build() (models.Job, error) {
	j := d.job
	j.Responsibilities = []string(d.responsibilities)
	j.RequiredSkills = []string(d.skills)
	j.FieldsOfStudy = []string(d.fields)
	j.Qualifications = d.qualifications.String
	j.EmbeddingModel = d.embeddingModel.String
	if d.embedding != nil {
		j.Embedding = d.embedding.Slice()
	}
	if err := unmarshalOptional(d.salary, &j.Salary); err != nil {
		return j, fmt.Errorf("salary: %w", err)
	}
	if err := unmarshalOptional(d.location, &j.Location); err != nil {
		return j, fmt.Errorf("location: %w", err)
	}
	if err := unmarshalOptional(d.ranking, &j.RankingConfig); err != nil {
		return j, fmt.Errorf("ranking config: %w", err)
	}
	return j, nil
}

func scanJob(row rowScanner) (*models.Job, error) {
	d := jobDest{}
	if err := row.Scan(d.targets()...); err != nil {
		return nil, err
	}
	job, err := d.build()
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type profileDest struct {
	profile        models.Profile
	summary        sql.NullString
	skills         pq.StringArray
	experience     []byte
	education      []byte
	employmentType sql.NullString
	location       []byte
	embedding      *pgvector.Vector
	embeddingModel sql.NullString
	embeddingText  sql.NullString
}

func (d *profileDest) targets() []interface{} {
	p := &d.profile
	return []interface{}{
		&p.ID, &p.UserID, &p.Headline, &d.summary, &d.skills, &d.experience, &d.education,
		&p.TotalYearsOfExperience, &d.employmentType, &d.location, &p.JobPreference, &p.IsDeleted,
		&d.embedding, &d.embeddingModel, &p.EmbeddingDirty, &d.embeddingText, &p.UpdatedAt,
	}
}

func (d *profileDest) build() (models.Profile, error) {
	p := d.profile
	p.Summary = d.summary.String
	p.Skills = []string(d.skills)
	p.EmploymentType = models.EmploymentType(d.employmentType.String)
	p.EmbeddingModel = d.embeddingModel.String
	p.EmbeddingText = d.embeddingText.String
	if d.embedding != nil {
		p.Embedding = d.embedding.Slice()
	}
	if err := unmarshalOptional(d.experience, &p.Experience); err != nil {
		return p, fmt.Errorf("experience: %w", err)
	}
	if err := unmarshalOptional(d.education, &p.Education); err != nil {
		return p, fmt.Errorf("education: %w", err)
	}
	if err := unmarshalOptional(d.location, &p.Location); err != nil {
		return p, fmt.Errorf("location: %w", err)
	}
	return p, nil
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	d := profileDest{}
	if err := row.Scan(d.targets()...); err != nil {
		return nil, err
	}
	profile, err := d.build()
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

type applicationDest struct {
	app     models.Application
	match   sql.NullFloat64
	ranking sql.NullFloat64
	notes   pq.StringArray
	history []byte
}

func (d *applicationDest) targets() []interface{} {
	a := &d.app
	return []interface{}{
		&a.ID, &a.JobID, &a.ApplicantID, &a.Status, &d.match, &d.ranking,
		&d.notes, &a.AppliedAt, &d.history,
	}
}

func (d *applicationDest) build() (models.Application, error) {
	a := d.app
	if d.match.Valid {
		v := d.match.Float64
		a.MatchScore = &v
	}
	if d.ranking.Valid {
		v := d.ranking.Float64
		a.RankingScore = &v
	}
	a.AINotes = []string(d.notes)
	if err := unmarshalOptional(d.history, &a.StatusHistory); err != nil {
		return a, fmt.Errorf("status history: %w", err)
	}
	return a, nil
}

func unmarshalOptional(raw []byte, v interface{}) error {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
