package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const accountColumns = `id, team_id, email, sync_from_date, last_sync_at, is_active, created_at`

func (a *MailAccount) dest() []any {
	return []any{&a.ID, &a.TeamID, &a.Email, &a.SyncFromDate, &a.LastSyncAt, &a.Active, &a.CreatedAt}
}

// CreateAccount registers a mailbox for a team and returns its id.
func (db *DB) CreateAccount(ctx context.Context, acc *MailAccount) (int64, error) {
	acc.CreatedAt = db.now()
	err := db.queryRow(ctx, db.conn, `
		INSERT INTO mail_accounts (team_id, email, sync_from_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		acc.TeamID, acc.Email, nullable(acc.SyncFromDate), acc.Active, acc.CreatedAt,
	).Scan(&acc.ID)
	if err != nil {
		return 0, fmt.Errorf("creating mail account: %w", err)
	}
	return acc.ID, nil
}

func (db *DB) GetAccount(ctx context.Context, teamID, accountID int64) (*MailAccount, error) {
	var acc MailAccount
	err := db.queryRow(ctx, db.conn,
		`SELECT `+accountColumns+` FROM mail_accounts WHERE id = ? AND team_id = ?`,
		accountID, teamID,
	).Scan(acc.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mail account %d: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting mail account %d: %w", accountID, err)
	}
	return &acc, nil
}

// TouchAccountSync stamps the last successful sync time of an account.
func (db *DB) TouchAccountSync(ctx context.Context, teamID, accountID int64, at time.Time) error {
	res, err := db.exec(ctx, db.conn,
		`UPDATE mail_accounts SET last_sync_at = ? WHERE id = ? AND team_id = ?`,
		at.UTC(), accountID, teamID,
	)
	if err != nil {
		return fmt.Errorf("updating last sync of account %d: %w", accountID, err)
	}
	return affectedOne(res, fmt.Sprintf("mail account %d", accountID))
}
