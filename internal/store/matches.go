package store

import (
	"context"
	"fmt"
)

const matchColumns = `m.id, m.job_position_id, m.candidate_id, m.resume_id, m.application_id, m.match_type,
	m.match_score, m.ai_analysis, m.summary, m.strengths, m.weaknesses, m.created_at, m.updated_at`

func (m *Match) dest() []any {
	return []any{
		&m.ID, &m.JobPositionID, &m.CandidateID, &m.ResumeID, &m.ApplicationID, &m.Type,
		&m.Score, &m.Analysis, &m.Summary, jsonColumn{&m.Strengths}, jsonColumn{&m.Weaknesses},
		&m.CreatedAt, &m.UpdatedAt,
	}
}

// CrossCandidates returns the team's processed profiles without an
// application for the position.
func (db *DB) CrossCandidates(ctx context.Context, teamID, positionID int64) ([]Profile, error) {
	rows, err := db.query(ctx, db.conn, `
		SELECT `+resumeColumns+`, `+candidateColumns+`
		FROM resumes r
		JOIN candidates c ON c.id = r.candidate_id
		WHERE r.team_id = ? AND r.status = ?
			AND NOT EXISTS (
				SELECT 1 FROM applications a
				WHERE a.resume_id = r.id AND a.job_position_id = ?
			)
		ORDER BY r.id`,
		teamID, string(ResumeProcessed), positionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing cross candidates: %w", err)
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(append(p.Resume.dest(), p.Candidate.dest()...)...); err != nil {
			return nil, fmt.Errorf("scanning cross candidate: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpsertMatch writes a match keyed by (position, candidate, resume). An
// existing row keeps its id and created_at.
func (db *DB) UpsertMatch(ctx context.Context, m *Match) (int64, error) {
	strengths, err := jsonList(m.Strengths)
	if err != nil {
		return 0, fmt.Errorf("encoding strengths: %w", err)
	}
	weaknesses, err := jsonList(m.Weaknesses)
	if err != nil {
		return 0, fmt.Errorf("encoding weaknesses: %w", err)
	}

	now := db.now()
	err = db.queryRow(ctx, db.conn, `
		INSERT INTO candidate_matches (job_position_id, candidate_id, resume_id, application_id,
			match_type, match_score, ai_analysis, summary, strengths, weaknesses, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_position_id, candidate_id, resume_id) DO UPDATE SET
			application_id = excluded.application_id,
			match_type = excluded.match_type,
			match_score = excluded.match_score,
			ai_analysis = excluded.ai_analysis,
			summary = excluded.summary,
			strengths = excluded.strengths,
			weaknesses = excluded.weaknesses,
			updated_at = excluded.updated_at
		RETURNING id, created_at`,
		m.JobPositionID, m.CandidateID, m.ResumeID, nullable(m.ApplicationID),
		string(m.Type), m.Score, m.Analysis, m.Summary, strengths, weaknesses, now, now,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("upserting match for candidate %d: %w", m.CandidateID, err)
	}
	m.UpdatedAt = now
	return m.ID, nil
}

// PositionMatches lists stored matches of a position with their candidates.
func (db *DB) PositionMatches(ctx context.Context, teamID, positionID int64) ([]MatchView, error) {
	rows, err := db.query(ctx, db.conn, `
		SELECT `+matchColumns+`, `+candidateColumns+`
		FROM candidate_matches m
		JOIN candidates c ON c.id = m.candidate_id
		JOIN job_positions p ON p.id = m.job_position_id
		WHERE m.job_position_id = ? AND p.team_id = ?
		ORDER BY m.match_score DESC, m.id`,
		positionID, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	defer rows.Close()

	var views []MatchView
	for rows.Next() {
		var v MatchView
		if err := rows.Scan(append(v.Match.dest(), v.Candidate.dest()...)...); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// DeleteMatches removes every stored match of a position.
func (db *DB) DeleteMatches(ctx context.Context, teamID, positionID int64) (int64, error) {
	res, err := db.exec(ctx, db.conn, `
		DELETE FROM candidate_matches
		WHERE job_position_id IN (SELECT id FROM job_positions WHERE id = ? AND team_id = ?)`,
		positionID, teamID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting matches of position %d: %w", positionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting matches of position %d: %w", positionID, err)
	}
	return n, nil
}
