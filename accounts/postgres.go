package accounts

import (
	"context"
	"errors"
	"fmt"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DBTX is the subset of *pgxpool.Pool, *pgx.Conn and pgx.Tx the store needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements goOTP.AccountStore on the accounts table created by [Migrate].
type PostgresStore struct {
	db DBTX
}

var _ goOTP.AccountStore = (*PostgresStore)(nil)

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetAccount(ctx context.Context, email string) (goOTP.Account, error) {
	const query = `SELECT id, email, password_hash, nickname, country, birthdate, created_at
		FROM accounts WHERE email = $1`

	var a goOTP.Account
	err := s.db.QueryRow(ctx, query, email).Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Nickname, &a.Country, &a.Birthdate, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return goOTP.Account{}, goOTP.ErrUserNotFound
		}
		return goOTP.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, account goOTP.Account) (goOTP.Account, error) {
	const query = `INSERT INTO accounts (id, email, password_hash, nickname, country, birthdate, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, query,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.Nickname,
		account.Country,
		account.Birthdate,
		account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return goOTP.Account{}, goOTP.ErrAccountExists
		}
		return goOTP.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}
