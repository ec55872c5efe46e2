package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const candidateColumns = `c.id, c.team_id, c.first_name, c.last_name, c.email, c.phone, c.summary,
	c.years_of_experience, c.technical_skills, c.soft_skills, c.experience, c.education,
	c.certifications, c.languages, c.key_achievements, c.linkedin_url, c.location,
	c.created_at, c.updated_at`

func (c *Candidate) dest() []any {
	return []any{
		&c.ID, &c.TeamID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Summary,
		&c.YearsOfExperience,
		jsonColumn{&c.TechnicalSkills}, jsonColumn{&c.SoftSkills}, jsonColumn{&c.Experience},
		jsonColumn{&c.Education}, jsonColumn{&c.Certifications}, jsonColumn{&c.Languages},
		jsonColumn{&c.KeyAchievements},
		&c.LinkedInURL, &c.Location, &c.CreatedAt, &c.UpdatedAt,
	}
}

func (db *DB) insertCandidate(ctx context.Context, q querier, c *Candidate) (int64, error) {
	lists := make([]string, 0, 7)
	for _, encode := range []func() (string, error){
		func() (string, error) { return jsonList(c.TechnicalSkills) },
		func() (string, error) { return jsonList(c.SoftSkills) },
		func() (string, error) { return jsonList(c.Experience) },
		func() (string, error) { return jsonList(c.Education) },
		func() (string, error) { return jsonList(c.Certifications) },
		func() (string, error) { return jsonList(c.Languages) },
		func() (string, error) { return jsonList(c.KeyAchievements) },
	} {
		encoded, err := encode()
		if err != nil {
			return 0, fmt.Errorf("encoding candidate lists: %w", err)
		}
		lists = append(lists, encoded)
	}

	now := db.now()
	c.CreatedAt, c.UpdatedAt = now, now

	err := db.queryRow(ctx, q, `
		INSERT INTO candidates (team_id, first_name, last_name, email, phone, summary,
			years_of_experience, technical_skills, soft_skills, experience, education,
			certifications, languages, key_achievements, linkedin_url, location,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		c.TeamID, nullable(c.FirstName), nullable(c.LastName), nullable(c.Email), nullable(c.Phone), nullable(c.Summary),
		nullable(c.YearsOfExperience), lists[0], lists[1], lists[2], lists[3],
		lists[4], lists[5], lists[6], nullable(c.LinkedInURL), nullable(c.Location),
		c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		return 0, fmt.Errorf("inserting candidate: %w", err)
	}
	return c.ID, nil
}

func (db *DB) GetCandidate(ctx context.Context, teamID, candidateID int64) (*Candidate, error) {
	var c Candidate
	err := db.queryRow(ctx, db.conn,
		`SELECT `+candidateColumns+` FROM candidates c WHERE c.id = ? AND c.team_id = ?`,
		candidateID, teamID,
	).Scan(c.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("candidate %d: %w", candidateID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting candidate %d: %w", candidateID, err)
	}
	return &c, nil
}

// ProcessedProfiles returns every processed resume of the team together with
// its candidate.
func (db *DB) ProcessedProfiles(ctx context.Context, teamID int64) ([]Profile, error) {
	rows, err := db.query(ctx, db.conn, `
		SELECT `+resumeColumns+`, `+candidateColumns+`
		FROM resumes r
		JOIN candidates c ON c.id = r.candidate_id
		WHERE r.team_id = ? AND r.status = ?
		ORDER BY r.id`,
		teamID, string(ResumeProcessed),
	)
	if err != nil {
		return nil, fmt.Errorf("listing processed profiles: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(append(p.Resume.dest(), p.Candidate.dest()...)...); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
