package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const applicationColumns = `a.id, a.resume_id, a.job_position_id, a.application_type, a.status,
	a.applied_at, a.reviewed_at, a.review_notes`

func (a *Application) dest() []any {
	return []any{&a.ID, &a.ResumeID, &a.JobPositionID, &a.Type, &a.Status, &a.AppliedAt, &a.ReviewedAt, &a.ReviewNotes}
}

// CreateApplication links a resume to a position, or to none for a spontaneous application.
func (db *DB) CreateApplication(ctx context.Context, resumeID int64, positionID *int64, typ ApplicationType) (*Application, error) {
	app := &Application{
		ResumeID:      resumeID,
		JobPositionID: positionID,
		Type:          typ,
		Status:        ApplicationPending,
		AppliedAt:     db.now(),
	}

	err := db.queryRow(ctx, db.conn, `
		INSERT INTO applications (resume_id, job_position_id, application_type, status, applied_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		app.ResumeID, nullable(app.JobPositionID), string(app.Type), string(app.Status), app.AppliedAt,
	).Scan(&app.ID)
	if err != nil {
		return nil, fmt.Errorf("creating application for resume %d: %w", resumeID, err)
	}
	return app, nil
}

// UpdateApplicationStatus records a review decision.
func (db *DB) UpdateApplicationStatus(ctx context.Context, teamID, applicationID int64, status ApplicationStatus, notes string) error {
	if !status.Valid() {
		return fmt.Errorf("unknown application status %q", status)
	}

	var notesArg any
	if notes != "" {
		notesArg = notes
	}

	res, err := db.exec(ctx, db.conn, `
		UPDATE applications SET status = ?, review_notes = COALESCE(?, review_notes), reviewed_at = ?
		WHERE id = ? AND resume_id IN (SELECT id FROM resumes WHERE team_id = ?)`,
		string(status), notesArg, db.now(), applicationID, teamID,
	)
	if err != nil {
		return fmt.Errorf("updating application %d: %w", applicationID, err)
	}
	return affectedOne(res, fmt.Sprintf("application %d", applicationID))
}

func (db *DB) GetApplication(ctx context.Context, teamID, applicationID int64) (*Application, error) {
	var app Application
	err := db.queryRow(ctx, db.conn, `
		SELECT `+applicationColumns+`
		FROM applications a JOIN resumes r ON r.id = a.resume_id
		WHERE a.id = ? AND r.team_id = ?`,
		applicationID, teamID,
	).Scan(app.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %d: %w", applicationID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting application %d: %w", applicationID, err)
	}
	return &app, nil
}

// ApplicationForResume returns the application created for a resume.
func (db *DB) ApplicationForResume(ctx context.Context, teamID, resumeID int64) (*Application, error) {
	var app Application
	err := db.queryRow(ctx, db.conn, `
		SELECT `+applicationColumns+`
		FROM applications a JOIN resumes r ON r.id = a.resume_id
		WHERE a.resume_id = ? AND r.team_id = ?
		ORDER BY a.id LIMIT 1`,
		resumeID, teamID,
	).Scan(app.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application for resume %d: %w", resumeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting application for resume %d: %w", resumeID, err)
	}
	return &app, nil
}

// PositionApplications lists applications for a position, newest first.
func (db *DB) PositionApplications(ctx context.Context, teamID, positionID int64) ([]Application, error) {
	return db.listApplications(ctx, `
		SELECT `+applicationColumns+`
		FROM applications a JOIN resumes r ON r.id = a.resume_id
		WHERE a.job_position_id = ? AND r.team_id = ?
		ORDER BY a.applied_at DESC, a.id DESC`,
		positionID, teamID,
	)
}

// SpontaneousApplications lists the team's applications without a position.
func (db *DB) SpontaneousApplications(ctx context.Context, teamID int64) ([]Application, error) {
	return db.listApplications(ctx, `
		SELECT `+applicationColumns+`
		FROM applications a JOIN resumes r ON r.id = a.resume_id
		WHERE a.job_position_id IS NULL AND r.team_id = ?
		ORDER BY a.applied_at DESC, a.id DESC`,
		teamID,
	)
}

func (db *DB) listApplications(ctx context.Context, query string, args ...any) ([]Application, error) {
	rows, err := db.query(ctx, db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		var app Application
		if err := rows.Scan(app.dest()...); err != nil {
			return nil, fmt.Errorf("scanning application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// DirectApplicants returns the processed profiles that applied to a position.
func (db *DB) DirectApplicants(ctx context.Context, teamID, positionID int64) ([]Profile, error) {
	rows, err := db.query(ctx, db.conn, `
		SELECT a.id, `+resumeColumns+`, `+candidateColumns+`
		FROM applications a
		JOIN resumes r ON r.id = a.resume_id
		JOIN candidates c ON c.id = r.candidate_id
		WHERE a.job_position_id = ? AND r.team_id = ? AND r.status = ?
		ORDER BY a.id`,
		positionID, teamID, string(ResumeProcessed),
	)
	if err != nil {
		return nil, fmt.Errorf("listing direct applicants: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var (
			p     Profile
			appID int64
		)
		dest := append([]any{&appID}, p.Resume.dest()...)
		if err := rows.Scan(append(dest, p.Candidate.dest()...)...); err != nil {
			return nil, fmt.Errorf("scanning applicant: %w", err)
		}
		p.ApplicationID = &appID
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
