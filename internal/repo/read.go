package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ListCredentials returns active seller logins for the named store.
func (r *SyncRepo) ListCredentials(ctx context.Context, store string) ([]Credential, error) {
	ctxT, cancel := r.withQ(ctx)
	defer cancel()

	rows, err := r.Pool.Query(ctxT, qListCredentials, store)
	if err != nil {
		return nil, fmt.Errorf("listCredentials query: %w", err)
	}
	defer rows.Close()

	creds := make([]Credential, 0, defaultCredsCap)
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.UserID, &c.Email, &c.Password); err != nil {
			return nil, fmt.Errorf("listCredentials scan: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listCredentials rows: %w", err)
	}
	return creds, nil
}

func (r *SyncRepo) GetCredential(ctx context.Context, store string, userID int64) (Credential, error) {
	ctxT, cancel := r.withQ(ctx)
	defer cancel()

	var c Credential
	err := r.Pool.QueryRow(ctxT, qGetCredential, store, userID).Scan(&c.UserID, &c.Email, &c.Password)
	if errorsIsNoRows(err) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("getCredential: %w", err)
	}
	return c, nil
}

func errorsIsNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
