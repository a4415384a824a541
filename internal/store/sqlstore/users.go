package sqlstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"varda/internal/domain"
	"varda/internal/verr"
)

type userStore struct{ db *DB }

func (s userStore) Create(ctx context.Context, u domain.User) (string, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO users (id, login, roles) VALUES ($1, $2, $3)
	`, u.ID, u.Login, joinRoles(u.Roles))
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: insert user")
	}
	return u.ID, nil
}

func (s userStore) Get(ctx context.Context, id string) (domain.User, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT id, login, roles FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s userStore) FindByTokenHash(ctx context.Context, hash string) (domain.User, bool, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT u.id, u.login, u.roles
		FROM users u JOIN tokens t ON t.user_id = u.id
		WHERE t.hash = $1
	`, hash)
	u, err := scanUser(row)
	if err != nil {
		if verr.KindOf(err) == verr.NotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return u, true, nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var roles string
	err := row.Scan(&u.ID, &u.Login, &roles)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.User{}, verr.New(verr.NotFound, "sqlstore: user not found")
		}
		return domain.User{}, verr.Wrap(verr.Internal, err, "sqlstore: scan user")
	}
	u.Roles = splitRoles(roles)
	return u, nil
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func splitRoles(s string) []domain.Role {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]domain.Role, len(parts))
	for i, p := range parts {
		out[i] = domain.Role(p)
	}
	return out
}

type tokenStore struct{ db *DB }

func (s tokenStore) Create(ctx context.Context, t domain.Token) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO tokens (id, user_id, hash) VALUES ($1, $2, $3)
	`, t.ID, t.UserID, t.Hash)
	if err != nil {
		return "", verr.Wrap(verr.Internal, err, "sqlstore: insert token")
	}
	return t.ID, nil
}

func (s tokenStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return verr.Wrap(verr.Internal, err, "sqlstore: revoke token")
	}
	return requireRowAffected(res, "token", id)
}

// HashToken computes the digest tokens are stored and looked up by, so a
// plaintext token is never persisted.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
