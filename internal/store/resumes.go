package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const resumeColumns = `r.id, r.team_id, r.candidate_id, r.object_key, r.file_name, r.mime_type, r.file_size,
	r.parsed_text, r.source_message_id, r.email_from, r.email_subject, r.email_date, r.status,
	r.validation_score, r.validation_reason, r.uploaded_at, r.processed_at`

func (r *Resume) dest() []any {
	return []any{
		&r.ID, &r.TeamID, &r.CandidateID, &r.ObjectKey, &r.FileName, &r.MimeType, &r.FileSize,
		&r.ParsedText, &r.SourceMessageID, &r.EmailFrom, &r.EmailSubject, &r.EmailDate, &r.Status,
		&r.ValidationScore, &r.ValidationReason, &r.UploadedAt, &r.ProcessedAt,
	}
}

// MessageSeen reports whether any resume was already ingested from the message.
func (db *DB) MessageSeen(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := db.queryRow(ctx, db.conn,
		`SELECT COUNT(*) FROM resumes WHERE source_message_id = ?`, messageID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking message %s: %w", messageID, err)
	}
	return n > 0, nil
}

// InsertResume stores a new pending resume. A resume with the same message
// id and file name yields ErrDuplicate.
func (db *DB) InsertResume(ctx context.Context, r *Resume) (int64, error) {
	r.Status = ResumePending
	r.UploadedAt = db.now()

	err := db.queryRow(ctx, db.conn, `
		INSERT INTO resumes (team_id, object_key, file_name, mime_type, file_size,
			source_message_id, email_from, email_subject, email_date, status, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_message_id, file_name) DO NOTHING
		RETURNING id`,
		r.TeamID, r.ObjectKey, r.FileName, r.MimeType, r.FileSize,
		r.SourceMessageID, r.EmailFrom, r.EmailSubject, nullable(r.EmailDate), string(r.Status), r.UploadedAt,
	).Scan(&r.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("resume %q of message %s: %w", r.FileName, r.SourceMessageID, ErrDuplicate)
	}
	if err != nil {
		return 0, fmt.Errorf("inserting resume: %w", err)
	}
	return r.ID, nil
}

func (db *DB) GetResume(ctx context.Context, teamID, resumeID int64) (*Resume, error) {
	var r Resume
	err := db.queryRow(ctx, db.conn,
		`SELECT `+resumeColumns+` FROM resumes r WHERE r.id = ? AND r.team_id = ?`,
		resumeID, teamID,
	).Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resume %d: %w", resumeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting resume %d: %w", resumeID, err)
	}
	return &r, nil
}

// ResumeIDsByStatus lists the team's resumes in a status, oldest first.
func (db *DB) ResumeIDsByStatus(ctx context.Context, teamID int64, status ResumeStatus) ([]int64, error) {
	rows, err := db.query(ctx, db.conn,
		`SELECT id FROM resumes WHERE team_id = ? AND status = ? ORDER BY id`,
		teamID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s resumes: %w", status, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning resume id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimResume moves a pending resume to processing and returns it. A resume
// in any other status is left untouched and reported with ok=false.
func (db *DB) ClaimResume(ctx context.Context, teamID, resumeID int64) (*Resume, bool, error) {
	res, err := db.exec(ctx, db.conn,
		`UPDATE resumes SET status = ? WHERE id = ? AND team_id = ? AND status = ?`,
		string(ResumeProcessing), resumeID, teamID, string(ResumePending),
	)
	if err != nil {
		return nil, false, fmt.Errorf("claiming resume %d: %w", resumeID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("claiming resume %d: %w", resumeID, err)
	}

	r, err := db.GetResume(ctx, teamID, resumeID)
	if err != nil {
		return nil, false, err
	}
	return r, n == 1, nil
}

func (db *DB) SaveParsedText(ctx context.Context, teamID, resumeID int64, text string) error {
	res, err := db.exec(ctx, db.conn,
		`UPDATE resumes SET parsed_text = ? WHERE id = ? AND team_id = ?`,
		text, resumeID, teamID,
	)
	if err != nil {
		return fmt.Errorf("saving text of resume %d: %w", resumeID, err)
	}
	return affectedOne(res, fmt.Sprintf("resume %d", resumeID))
}

func (db *DB) SaveValidation(ctx context.Context, teamID, resumeID int64, score int, reason string) error {
	res, err := db.exec(ctx, db.conn,
		`UPDATE resumes SET validation_score = ?, validation_reason = ? WHERE id = ? AND team_id = ?`,
		score, reason, resumeID, teamID,
	)
	if err != nil {
		return fmt.Errorf("saving validation of resume %d: %w", resumeID, err)
	}
	return affectedOne(res, fmt.Sprintf("resume %d", resumeID))
}

// FinishResume moves a resume to a terminal status without a candidate.
func (db *DB) FinishResume(ctx context.Context, teamID, resumeID int64, status ResumeStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("finishing resume %d: %q is not a terminal status", resumeID, status)
	}
	res, err := db.exec(ctx, db.conn,
		`UPDATE resumes SET status = ?, processed_at = ? WHERE id = ? AND team_id = ?`,
		string(status), db.now(), resumeID, teamID,
	)
	if err != nil {
		return fmt.Errorf("finishing resume %d as %s: %w", resumeID, status, err)
	}
	return affectedOne(res, fmt.Sprintf("resume %d", resumeID))
}

// CompleteResume inserts the extracted candidate and links it to the
// resume, which becomes processed. Both writes share one transaction.
func (db *DB) CompleteResume(ctx context.Context, teamID, resumeID int64, c *Candidate) (int64, error) {
	c.TeamID = teamID
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		id, err := db.insertCandidate(ctx, tx, c)
		if err != nil {
			return err
		}

		res, err := db.exec(ctx, tx,
			`UPDATE resumes SET candidate_id = ?, status = ?, processed_at = ? WHERE id = ? AND team_id = ?`,
			id, string(ResumeProcessed), db.now(), resumeID, teamID,
		)
		if err != nil {
			return fmt.Errorf("linking candidate to resume %d: %w", resumeID, err)
		}
		return affectedOne(res, fmt.Sprintf("resume %d", resumeID))
	})
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// ResetResumes moves the team's resumes in the given statuses back to pending.
func (db *DB) ResetResumes(ctx context.Context, teamID int64, statuses ...ResumeStatus) (int64, error) {
	var total int64
	for _, status := range statuses {
		res, err := db.exec(ctx, db.conn,
			`UPDATE resumes SET status = ?, processed_at = NULL WHERE team_id = ? AND status = ?`,
			string(ResumePending), teamID, string(status),
		)
		if err != nil {
			return total, fmt.Errorf("resetting %s resumes: %w", status, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("resetting %s resumes: %w", status, err)
		}
		total += n
	}
	return total, nil
}

// CountResumes returns per status counts for a team.
func (db *DB) CountResumes(ctx context.Context, teamID int64) (StatusCounts, error) {
	var counts StatusCounts

	rows, err := db.query(ctx, db.conn,
		`SELECT status, COUNT(*) FROM resumes WHERE team_id = ? GROUP BY status`, teamID,
	)
	if err != nil {
		return counts, fmt.Errorf("counting resumes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status ResumeStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scanning resume count: %w", err)
		}
		counts.Total += n
		switch status {
		case ResumePending:
			counts.Pending = n
		case ResumeProcessing:
			counts.Processing = n
		case ResumeProcessed:
			counts.Processed = n
		case ResumeRejected:
			counts.Rejected = n
		case ResumeError:
			counts.Errored = n
		}
	}
	return counts, rows.Err()
}
