package checklist

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldscope/vistoria/model"
	"github.com/pkg/errors"
)

type dbtx interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

const submissionColumns = `
	s.id, s.scope_id, s.supervisor_id, s.supervisor_name, s.status,
	s.observations, s.lat, s.lng, s.accuracy, s.address, s.device_id, s.user_agent,
	s.started_at, s.updated_at, s.submitted_at,
	s.protocol, s.integrity_hash,
	s.signature_photo_url, s.manager_signature_url,
	s.manager_signer_id, s.manager_signer_name, s.manager_signed_at`

func scanSubmission(row interface{ Scan(...any) error }) (*model.Submission, error) {
	sub := &model.Submission{}
	err := row.Scan(
		&sub.ID, &sub.ScopeID, &sub.SupervisorID, &sub.SupervisorName, &sub.Status,
		&sub.Observations, &sub.Latitude, &sub.Longitude, &sub.Accuracy,
		&sub.Address, &sub.DeviceID, &sub.UserAgent,
		&sub.StartedAt, &sub.UpdatedAt, &sub.SubmittedAt,
		&sub.Protocol, &sub.IntegrityHash,
		&sub.SignaturePhotoURL, &sub.ManagerSignatureURL,
		&sub.ManagerSignerID, &sub.ManagerSignerName, &sub.ManagerSignedAt,
	)
	return sub, err
}

// findDraft locates the actor's open draft, preferring an explicit id when
// the client targets one. The partial unique index on
// (scope_id, supervisor_id) WHERE status='DRAFT' guarantees at most one row.
func findDraft(ctx context.Context, q dbtx, scopeID, supervisorID, draftID string) (*model.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submission s
		WHERE s.scope_id = ? AND s.supervisor_id = ? AND s.status = ?`
	args := []any{scopeID, supervisorID, model.StatusDraft}
	if draftID != "" {
		query += ` AND s.id = ?`
		args = append(args, draftID)
	}

	sub, err := scanSubmission(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "db.find_draft")
	}
	return sub, nil
}

func loadSubmission(ctx context.Context, q dbtx, id string) (*model.Submission, error) {
	sub, err := scanSubmission(q.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submission s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "db.get_submission")
	}
	return sub, nil
}

// loadAnswers returns a submission's answers joined with their question's
// declared order so callers see them in schema sequence.
func loadAnswers(ctx context.Context, q dbtx, submissionID string) ([]model.Answer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			a.id, a.question_id, a.question_type,
			a.value_text, a.value_bool, a.value_number, a.value_option,
			a.photo_urls, a.score, a.justification
		FROM answer a
		JOIN question qu ON (qu.id = a.question_id)
		JOIN question_group g ON (g.id = qu.group_id)
		WHERE a.submission_id = ?
		ORDER BY g.order_index, qu.order_index`,
		submissionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "db.get_answers")
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a := model.Answer{SubmissionID: submissionID}
		var photoURLs string
		err = rows.Scan(
			&a.ID, &a.QuestionID, &a.QuestionType,
			&a.ValueText, &a.ValueBool, &a.ValueNumber, &a.ValueOption,
			&photoURLs, &a.Score, &a.Justification,
		)
		if err != nil {
			return nil, errors.Wrap(err, "db.get_answers.scan")
		}
		a.PhotoURLs = model.DecodePhotoURLs(photoURLs)
		answers = append(answers, a)
	}
	return answers, errors.Wrap(rows.Err(), "db.get_answers.rows")
}

func insertSubmission(ctx context.Context, tx dbtx, sub *model.Submission) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO submission (
			id, scope_id, supervisor_id, supervisor_name, status,
			observations, lat, lng, accuracy, address, device_id, user_agent,
			started_at, updated_at, submitted_at,
			protocol, integrity_hash,
			signature_photo_url, manager_signature_url,
			manager_signer_id, manager_signer_name, manager_signed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ScopeID, sub.SupervisorID, sub.SupervisorName, sub.Status,
		sub.Observations, sub.Latitude, sub.Longitude, sub.Accuracy,
		sub.Address, sub.DeviceID, sub.UserAgent,
		sub.StartedAt, sub.UpdatedAt, sub.SubmittedAt,
		sub.Protocol, sub.IntegrityHash,
		sub.SignaturePhotoURL, sub.ManagerSignatureURL,
		sub.ManagerSignerID, sub.ManagerSignerName, sub.ManagerSignedAt,
	)
	return errors.Wrap(err, "db.insert_submission")
}

func updateSubmission(ctx context.Context, tx dbtx, sub *model.Submission) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE submission SET
			status = ?, observations = ?,
			lat = ?, lng = ?, accuracy = ?, address = ?, device_id = ?, user_agent = ?,
			updated_at = ?, submitted_at = ?,
			protocol = ?, integrity_hash = ?,
			signature_photo_url = ?, manager_signature_url = ?
		WHERE id = ?`,
		sub.Status, sub.Observations,
		sub.Latitude, sub.Longitude, sub.Accuracy, sub.Address, sub.DeviceID, sub.UserAgent,
		sub.UpdatedAt, sub.SubmittedAt,
		sub.Protocol, sub.IntegrityHash,
		sub.SignaturePhotoURL, sub.ManagerSignatureURL,
		sub.ID,
	)
	return errors.Wrap(err, "db.update_submission")
}

// replaceAnswers deletes and recreates the submission's whole answer set.
// Callers run mergeAnswers first so carried-forward photos survive the swap.
func replaceAnswers(ctx context.Context, tx dbtx, submissionID string, answers []model.Answer, newID func() string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM answer WHERE submission_id = ?`, submissionID)
	if err != nil {
		return errors.Wrap(err, "db.delete_answers")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO answer (
			id, submission_id, question_id, question_type,
			value_text, value_bool, value_number, value_option,
			photo_urls, score, justification
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "db.insert_answers.prepare")
	}
	defer stmt.Close()

	for _, a := range answers {
		_, err = stmt.ExecContext(ctx,
			newID(), submissionID, a.QuestionID, a.QuestionType,
			a.ValueText, a.ValueBool, a.ValueNumber, a.ValueOption,
			a.EncodePhotoURLs(), a.Score, a.Justification,
		)
		if err != nil {
			return errors.Wrap(err, "db.insert_answers.insert")
		}
	}
	return nil
}

func touchScope(ctx context.Context, tx dbtx, scopeID, by string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE scope SET last_submission_at = ?, last_submission_by = ?
		WHERE id = ?`,
		at, by, scopeID,
	)
	return errors.Wrap(err, "db.touch_scope")
}

func setManagerSignature(ctx context.Context, tx dbtx, sub *model.Submission) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE submission SET
			manager_signature_url = ?, manager_signer_id = ?,
			manager_signer_name = ?, manager_signed_at = ?
		WHERE id = ? AND status = ?`,
		sub.ManagerSignatureURL, sub.ManagerSignerID,
		sub.ManagerSignerName, sub.ManagerSignedAt,
		sub.ID, model.StatusFinalized,
	)
	return errors.Wrap(err, "db.set_manager_signature")
}
