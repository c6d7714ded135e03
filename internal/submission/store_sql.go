package submission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLStore implements Store over database/sql, against sqlite (offline) or
// postgres. Multi-entity methods run in a single transaction; replacement
// takes a row lock on the submission so the grace quota cannot be raced.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// lockClause appends FOR UPDATE on postgres. sqlite serializes writers at
// the database level, so the clause is unnecessary there (and unsupported).
func (s *SQLStore) lockClause() string {
	if s.driver == "postgres" {
		return " FOR UPDATE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE")
}

func (s *SQLStore) PutContest(ctx context.Context, c Contest) error {
	cj, err := json.Marshal(c.Criteria)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO contests (id,title,opens_at,closes_at,criteria_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, opens_at=EXCLUDED.opens_at,
			closes_at=EXCLUDED.closes_at, criteria_json=EXCLUDED.criteria_json`,
		c.ID, c.Title, c.OpensAt.Unix(), c.ClosesAt.Unix(), string(cj), time.Now().Unix())
	return err
}

func (s *SQLStore) GetContest(ctx context.Context, id string) (Contest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,title,opens_at,closes_at,criteria_json,created_at FROM contests WHERE id=$1`, id)
	return scanContest(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanContest(row rowScanner) (Contest, error) {
	var c Contest
	var opens, closes, created int64
	var cj string
	if err := row.Scan(&c.ID, &c.Title, &opens, &closes, &cj, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contest{}, ErrNotFound
		}
		return Contest{}, err
	}
	c.OpensAt = time.Unix(opens, 0).UTC()
	c.ClosesAt = time.Unix(closes, 0).UTC()
	c.CreatedAt = time.Unix(created, 0).UTC()
	if err := json.Unmarshal([]byte(cj), &c.Criteria); err != nil {
		return Contest{}, fmt.Errorf("contest %s: bad criteria json: %w", c.ID, err)
	}
	return c, nil
}

func (s *SQLStore) ListContests(ctx context.Context) ([]Contest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,title,opens_at,closes_at,criteria_json,created_at FROM contests ORDER BY closes_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) AnonymousIDExists(ctx context.Context, contestID, anonID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM submissions WHERE contest_id=$1 AND anonymous_id=$2`, contestID, anonID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) InsertSubmission(ctx context.Context, sub Submission) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO submissions
		(id,contest_id,submitter_id,anonymous_id,sealed_ref,deposited_at,status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		sub.ID, sub.ContestID, sub.SubmitterID, sub.AnonymousID, sub.SealedRef,
		sub.DepositedAt.Unix(), string(sub.Status))
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateAnonymousID
	}
	return err
}

func scanSubmission(row rowScanner) (Submission, error) {
	var sub Submission
	var status string
	var deposited int64
	if err := row.Scan(&sub.ID, &sub.ContestID, &sub.SubmitterID, &sub.AnonymousID,
		&sub.SealedRef, &deposited, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Submission{}, ErrNotFound
		}
		return Submission{}, err
	}
	sub.DepositedAt = time.Unix(deposited, 0).UTC()
	sub.Status = Status(status)
	return sub, nil
}

const submissionCols = `id,contest_id,submitter_id,anonymous_id,sealed_ref,deposited_at,status`

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id=$1`, id)
	return scanSubmission(row)
}

func (s *SQLStore) ListSubmissions(ctx context.Context, contestID string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE contest_id=$1 ORDER BY deposited_at`, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteSubmission(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// referencing rows first; attributions and corrections carry FKs
		for _, q := range []string{
			`DELETE FROM attributions WHERE submission_id=$1`,
			`DELETE FROM corrections WHERE submission_id=$1`,
			`DELETE FROM modification_log WHERE submission_id=$1`,
			`DELETE FROM rejection_log WHERE submission_id=$1`,
			`DELETE FROM notifications WHERE submission_id=$1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *SQLStore) ReplaceArtifact(ctx context.Context, rec ModificationRecord, quota *GraceQuota) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// lock the submission row for the duration of the quota check
		var cur string
		err := tx.QueryRowContext(ctx,
			`SELECT sealed_ref FROM submissions WHERE id=$1`+s.lockClause(), rec.SubmissionID).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if quota != nil {
			var used int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM modification_log WHERE submission_id=$1 AND at > $2 AND at <= $3`,
				rec.SubmissionID, quota.Start.Unix(), quota.End.Unix()).Scan(&used)
			if err != nil {
				return err
			}
			if used >= quota.Max {
				return forbidden("grace period: modification quota exhausted")
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET sealed_ref=$1 WHERE id=$2`, rec.NewRef, rec.SubmissionID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO modification_log
			(submission_id,actor_id,prior_ref,new_ref,reason,at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			rec.SubmissionID, rec.ActorID, rec.PriorRef, rec.NewRef, rec.Reason, rec.At.Unix())
		return err
	})
}

func (s *SQLStore) ListModifications(ctx context.Context, submissionID string) ([]ModificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT submission_id,actor_id,prior_ref,new_ref,reason,at
		FROM modification_log WHERE submission_id=$1 ORDER BY at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModificationRecord
	for rows.Next() {
		var rec ModificationRecord
		var at int64
		if err := rows.Scan(&rec.SubmissionID, &rec.ActorID, &rec.PriorRef, &rec.NewRef, &rec.Reason, &at); err != nil {
			return nil, err
		}
		rec.At = time.Unix(at, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpsertAttribution(ctx context.Context, a Attribution) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status, prevGrader string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM submissions WHERE id=$1`+s.lockClause(), a.SubmissionID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		err = tx.QueryRowContext(ctx,
			`SELECT grader_id FROM attributions WHERE submission_id=$1`, a.SubmissionID).Scan(&prevGrader)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if prevGrader != "" && prevGrader != a.GraderID {
			// re-attribution discards the removed grader's correction
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM corrections WHERE submission_id=$1 AND grader_id=$2`,
				a.SubmissionID, prevGrader); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO attributions (submission_id,grader_id,assigned_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (submission_id) DO UPDATE SET grader_id=EXCLUDED.grader_id, assigned_at=EXCLUDED.assigned_at`,
			a.SubmissionID, a.GraderID, a.AssignedAt.Unix()); err != nil {
			return err
		}
		if prevGrader == a.GraderID {
			// same grader, idempotent: their submitted review stays submitted
			return nil
		}
		if Status(status) == StatusPending || Status(status) == StatusReviewSubmitted {
			if _, err := tx.ExecContext(ctx,
				`UPDATE submissions SET status=$1 WHERE id=$2`,
				string(StatusUnderReview), a.SubmissionID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) GetAttribution(ctx context.Context, submissionID string) (Attribution, error) {
	var a Attribution
	var at int64
	err := s.db.QueryRowContext(ctx,
		`SELECT submission_id,grader_id,assigned_at FROM attributions WHERE submission_id=$1`,
		submissionID).Scan(&a.SubmissionID, &a.GraderID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Attribution{}, ErrNotFound
	}
	if err != nil {
		return Attribution{}, err
	}
	a.AssignedAt = time.Unix(at, 0).UTC()
	return a, nil
}

func (s *SQLStore) RemoveAttribution(ctx context.Context, submissionID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM attributions WHERE submission_id=$1`, submissionID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM corrections WHERE submission_id=$1`, submissionID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE submissions SET status=$1 WHERE id=$2`,
			string(StatusPending), submissionID)
		return err
	})
}

func (s *SQLStore) DetachGrader(ctx context.Context, graderID string) ([]string, error) {
	var affected []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT submission_id FROM attributions WHERE grader_id=$1`, graderID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			affected = append(affected, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attributions WHERE grader_id=$1`, graderID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM corrections WHERE grader_id=$1 AND validated_at IS NULL`, graderID); err != nil {
			return err
		}
		for _, id := range affected {
			if _, err := tx.ExecContext(ctx,
				`UPDATE submissions SET status=$1 WHERE id=$2 AND status<>$3`,
				string(StatusPending), id, string(StatusFinalized)); err != nil {
				return err
			}
		}
		return nil
	})
	return affected, err
}

func (s *SQLStore) UpsertCorrection(ctx context.Context, c Correction) error {
	ej, err := json.Marshal(c.Entries)
	if err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM submissions WHERE id=$1`+s.lockClause(), c.SubmissionID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO corrections
			(id,submission_id,grader_id,entries_json,comment,score,submitted_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (submission_id,grader_id) DO UPDATE SET
				entries_json=EXCLUDED.entries_json, comment=EXCLUDED.comment,
				score=EXCLUDED.score, submitted_at=EXCLUDED.submitted_at`,
			c.ID, c.SubmissionID, c.GraderID, string(ej), c.Comment, c.Score, c.SubmittedAt.Unix()); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE submissions SET status=$1 WHERE id=$2`,
			string(StatusReviewSubmitted), c.SubmissionID)
		return err
	})
}

const correctionCols = `id,submission_id,grader_id,entries_json,comment,score,submitted_at,validated_at,validator_id,admin_comment`

func scanCorrection(row rowScanner) (Correction, error) {
	var c Correction
	var ej string
	var submitted int64
	var validated sql.NullInt64
	var validator, adminComment sql.NullString
	if err := row.Scan(&c.ID, &c.SubmissionID, &c.GraderID, &ej, &c.Comment, &c.Score,
		&submitted, &validated, &validator, &adminComment); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Correction{}, ErrNotFound
		}
		return Correction{}, err
	}
	if err := json.Unmarshal([]byte(ej), &c.Entries); err != nil {
		return Correction{}, fmt.Errorf("correction %s: bad entries json: %w", c.ID, err)
	}
	c.SubmittedAt = time.Unix(submitted, 0).UTC()
	if validated.Valid {
		t := time.Unix(validated.Int64, 0).UTC()
		c.ValidatedAt = &t
	}
	c.ValidatorID = validator.String
	c.AdminComment = adminComment.String
	return c, nil
}

func (s *SQLStore) GetCorrection(ctx context.Context, id string) (Correction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+correctionCols+` FROM corrections WHERE id=$1`, id)
	return scanCorrection(row)
}

func (s *SQLStore) GetCorrectionFor(ctx context.Context, submissionID, graderID string) (Correction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+correctionCols+` FROM corrections WHERE submission_id=$1 AND grader_id=$2`,
		submissionID, graderID)
	return scanCorrection(row)
}

func (s *SQLStore) FinalizeCorrection(ctx context.Context, c Correction, n Notification) error {
	if c.ValidatedAt == nil {
		return fmt.Errorf("finalize: missing validation timestamp")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE corrections
			SET score=$1, validated_at=$2, validator_id=$3, admin_comment=$4 WHERE id=$5`,
			c.Score, c.ValidatedAt.Unix(), c.ValidatorID, c.AdminComment, c.ID)
		if err != nil {
			return err
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1 WHERE id=$2`,
			string(StatusFinalized), c.SubmissionID); err != nil {
			return err
		}
		return insertNotification(ctx, tx, n)
	})
}

func (s *SQLStore) RejectCorrection(ctx context.Context, rec RejectionRecord, n Notification) error {
	ej, err := json.Marshal(rec.Entries)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var validated sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT validated_at FROM corrections WHERE submission_id=$1 AND grader_id=$2`+s.lockClause(),
			rec.SubmissionID, rec.GraderID).Scan(&validated)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if validated.Valid {
			return ErrAlreadyFinalized
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM corrections WHERE submission_id=$1 AND grader_id=$2`,
			rec.SubmissionID, rec.GraderID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO rejection_log
			(submission_id,grader_id,admin_id,comment,entries_json,score,at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rec.SubmissionID, rec.GraderID, rec.AdminID, rec.Comment, string(ej), rec.Score, rec.At.Unix()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE submissions SET status=$1 WHERE id=$2`,
			string(StatusUnderReview), rec.SubmissionID); err != nil {
			return err
		}
		return insertNotification(ctx, tx, n)
	})
}

func (s *SQLStore) ListRejections(ctx context.Context, submissionID string) ([]RejectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT submission_id,grader_id,admin_id,comment,entries_json,score,at
		FROM rejection_log WHERE submission_id=$1 ORDER BY at`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RejectionRecord
	for rows.Next() {
		var rec RejectionRecord
		var ej string
		var at int64
		if err := rows.Scan(&rec.SubmissionID, &rec.GraderID, &rec.AdminID, &rec.Comment, &ej, &rec.Score, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ej), &rec.Entries); err != nil {
			return nil, err
		}
		rec.At = time.Unix(at, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func insertNotification(ctx context.Context, tx *sql.Tx, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications
		(id,user_id,kind,submission_id,message,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		n.ID, n.UserID, n.Kind, n.SubmissionID, n.Message, n.CreatedAt.Unix())
	return err
}

func (s *SQLStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	q := `SELECT id,user_id,kind,submission_id,message,created_at,read_at
		FROM notifications WHERE user_id=$1`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Notification
	for rows.Next() {
		var n Notification
		var created int64
		var read sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.SubmissionID, &n.Message, &created, &read); err != nil {
			return nil, err
		}
		n.CreatedAt = time.Unix(created, 0).UTC()
		if read.Valid {
			t := time.Unix(read.Int64, 0).UTC()
			n.ReadAt = &t
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read_at=$1 WHERE id=$2 AND user_id=$3 AND read_at IS NULL`,
		time.Now().Unix(), id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already read or not the caller's notification
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM notifications WHERE id=$1 AND user_id=$2`, id, userID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *SQLStore) GetUserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var _ Store = (*SQLStore)(nil)
