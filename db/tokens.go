package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (dbm *DBManager) InsertToken(ctx context.Context, tokenType, tokenUuid, userID string, expiresAt time.Time) error {
	query := "INSERT INTO tokens(type, uuid, user_id, expires_at) VALUES($1, $2, $3, $4)"

	if _, err := dbm.DB.ExecContext(ctx, query, tokenType, tokenUuid, userID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// TokenUserID returns the owner of an issued, unexpired token.
func (dbm *DBManager) TokenUserID(ctx context.Context, tokenType, tokenUuid string) (string, error) {
	var userID string

	query := "SELECT user_id FROM tokens WHERE uuid=$1 AND type=$2 AND expires_at > $3"

	err := dbm.DB.QueryRowxContext(ctx, query, tokenUuid, tokenType, dbm.timestamp()).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	return userID, nil
}

func (dbm *DBManager) DeleteToken(ctx context.Context, tokenType, tokenUuid string) (int64, error) {
	query := "DELETE FROM tokens WHERE uuid=$1 AND type=$2"

	result, err := dbm.DB.ExecContext(ctx, query, tokenUuid, tokenType)
	if err != nil {
		return 0, fmt.Errorf("delete token: %w", err)
	}
	return result.RowsAffected()
}

func (dbm *DBManager) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	result, err := dbm.DB.ExecContext(ctx, "DELETE FROM tokens WHERE expires_at <= $1", dbm.timestamp())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return result.RowsAffected()
}
