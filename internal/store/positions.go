package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const positionColumns = `p.id, p.team_id, p.created_by, p.title, p.description, p.requirements,
	p.responsibilities, p.location, p.employment_type, p.salary_min, p.salary_max,
	p.salary_currency, p.status, p.created_at, p.updated_at`

func (p *JobPosition) dest() []any {
	return []any{
		&p.ID, &p.TeamID, &p.CreatedBy, &p.Title, &p.Description, &p.Requirements,
		&p.Responsibilities, &p.Location, &p.EmploymentType, &p.SalaryMin, &p.SalaryMax,
		&p.SalaryCurrency, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	}
}

// CreatePosition inserts a job posting. Postings are managed elsewhere; this
// exists for seeding and tests.
func (db *DB) CreatePosition(ctx context.Context, p *JobPosition) (int64, error) {
	if p.Status == "" {
		p.Status = PositionActive
	}
	now := db.now()
	p.CreatedAt, p.UpdatedAt = now, now

	err := db.queryRow(ctx, db.conn, `
		INSERT INTO job_positions (team_id, created_by, title, description, requirements,
			responsibilities, location, employment_type, salary_min, salary_max,
			salary_currency, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.TeamID, nullable(p.CreatedBy), p.Title, p.Description, p.Requirements,
		p.Responsibilities, p.Location, p.EmploymentType, nullable(p.SalaryMin), nullable(p.SalaryMax),
		p.SalaryCurrency, string(p.Status), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		return 0, fmt.Errorf("creating position: %w", err)
	}
	return p.ID, nil
}

func (db *DB) GetPosition(ctx context.Context, teamID, positionID int64) (*JobPosition, error) {
	var p JobPosition
	err := db.queryRow(ctx, db.conn,
		`SELECT `+positionColumns+` FROM job_positions p WHERE p.id = ? AND p.team_id = ?`,
		positionID, teamID,
	).Scan(p.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %d: %w", positionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting position %d: %w", positionID, err)
	}
	return &p, nil
}

func (db *DB) ActivePositions(ctx context.Context, teamID int64) ([]JobPosition, error) {
	rows, err := db.query(ctx, db.conn,
		`SELECT `+positionColumns+` FROM job_positions p WHERE p.team_id = ? AND p.status = ? ORDER BY p.id`,
		teamID, string(PositionActive),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active positions: %w", err)
	}
	defer rows.Close()

	var positions []JobPosition
	for rows.Next() {
		var p JobPosition
		if err := rows.Scan(p.dest()...); err != nil {
			return nil, fmt.Errorf("scanning position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
