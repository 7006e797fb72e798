package idp

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the account repository.
type Accounts interface {
	repository.Repository[*Account]

	GetByLogin(ctx context.Context, identifier string) (*Account, error)
	GetByLoginTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error)
	IsTaken(ctx context.Context, email, username string) (bool, error)
	IsTakenTx(ctx context.Context, tx bun.IDB, email, username string) (bool, error)
	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackAttemptedLogin(ctx context.Context, account *Account) error
}

type accounts struct {
	repository.Repository[*Account]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository returns the bun backed account repository.
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

// GetByLogin resolves identifier as an account id, an email or a username,
// in that order.
func (a *accounts) GetByLogin(ctx context.Context, identifier string) (*Account, error) {
	return a.GetByLoginTx(ctx, a.db, identifier)
}

func (a *accounts) GetByLoginTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error) {
	for _, opt := range resolveLoginIdentifier(identifier) {
		record := &Account{}
		err := tx.NewSelect().
			Model(record).
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, fmt.Errorf("account %q: %w", identifier, repository.ErrRecordNotFound)
}

// IsTaken reports whether email or username is already taken, soft deleted
// accounts included since the unique indexes still cover them.
func (a *accounts) IsTaken(ctx context.Context, email, username string) (bool, error) {
	return a.IsTakenTx(ctx, a.db, email, username)
}

func (a *accounts) IsTakenTx(ctx context.Context, tx bun.IDB, email, username string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		WhereAllWithDeleted().
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("?TableAlias.email = ?", strings.ToLower(email)).
				WhereOr("?TableAlias.username = ?", username)
		}).
		Exists(ctx)
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	prepareAccountDefaults(account)
	record, err := a.Repository.CreateTx(ctx, tx, account)
	if err != nil && isUniqueViolation(err) {
		return nil, wrapAccountExists(err)
	}
	return record, err
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	_, err := a.db.NewRaw(`
		UPDATE "accounts"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			"id" = ?
			AND "deleted_at" IS NULL;
	`, a.now(), account.ID).Exec(ctx)
	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	now := a.now()
	account.LoginAttempts++
	account.LoginAttemptAt = &now

	_, err := a.db.NewUpdate().
		Model(account).
		Column("login_attempts", "login_attempt_at").
		WherePK().
		Exec(ctx)
	return err
}

type identifierOption struct {
	column string
	value  string
}

func resolveLoginIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if _, err := uuid.Parse(trimmed); err == nil {
		options = append(options, identifierOption{column: "id", value: trimmed})
	}

	if _, err := mail.ParseAddress(trimmed); err == nil {
		options = append(options, identifierOption{column: "email", value: strings.ToLower(trimmed)})
	}

	return append(options, identifierOption{column: "username", value: trimmed})
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
