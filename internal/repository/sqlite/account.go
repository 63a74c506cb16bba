package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/repository"
)

// AccountRepository implementa repository.AccountRepository usando SQLite
type AccountRepository struct {
	db *sqlx.DB
}

// Compiletime check: asegura que implementa la interfaz
var _ repository.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository crea un nuevo repositorio de cuentas
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// accountRow mapea la tabla SQL a struct Go
type accountRow struct {
	ID               int64          `db:"id"`
	Domain           string         `db:"domain"`
	Name             string         `db:"name"`
	CookiePath       string         `db:"cookie_path"`
	IsActive         int            `db:"is_active"`
	ValidationStatus string         `db:"validation_status"`
	ValidationError  sql.NullString `db:"validation_error"`
	LastUsed         sql.NullInt64  `db:"last_used"`
	CreatedAt        int64          `db:"created_at"`
}

// Create inserta una nueva cuenta
func (r *AccountRepository) Create(ctx context.Context, acc *domain.Account) (int64, error) {
	query := `
		INSERT INTO accounts (domain, name, cookie_path, is_active, validation_status)
		VALUES (:domain, :name, :cookie_path, :is_active, :validation_status)
	`

	status := acc.ValidationStatus
	if status == "" {
		status = domain.ValidationStatusUnknown
	}

	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"domain":            acc.Domain,
		"name":              acc.Name,
		"cookie_path":       acc.CookiePath,
		"is_active":         boolToInt(acc.IsActive),
		"validation_status": status,
	})
	if err != nil {
		return 0, fmt.Errorf("insert account: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	return id, nil
}

// GetByID obtiene una cuenta por ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	var row accountRow

	query := `SELECT * FROM accounts WHERE id = ?`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account not found: %d", id)
		}
		return nil, fmt.Errorf("get account: %w", err)
	}

	return accountRowToDomain(&row), nil
}

// Update actualiza una cuenta
func (r *AccountRepository) Update(ctx context.Context, acc *domain.Account) error {
	var lastUsed interface{}
	if acc.LastUsed != nil {
		lastUsed = acc.LastUsed.Unix()
	}

	query := `
		UPDATE accounts
		SET domain = :domain, name = :name, cookie_path = :cookie_path,
		    is_active = :is_active, validation_status = :validation_status,
		    validation_error = :validation_error, last_used = :last_used
		WHERE id = :id
	`

	_, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                acc.ID,
		"domain":            acc.Domain,
		"name":              acc.Name,
		"cookie_path":       acc.CookiePath,
		"is_active":         boolToInt(acc.IsActive),
		"validation_status": acc.ValidationStatus,
		"validation_error":  acc.ValidationError,
		"last_used":         lastUsed,
	})

	return err
}

// Delete elimina una cuenta
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM accounts WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// GetActive obtiene la cuenta activa de un dominio. Retorna nil sin error
// cuando el dominio no tiene cuenta activa.
func (r *AccountRepository) GetActive(ctx context.Context, dom string) (*domain.Account, error) {
	var row accountRow

	query := `
		SELECT * FROM accounts
		WHERE domain = ? AND is_active = 1
		LIMIT 1
	`

	if err := r.db.GetContext(ctx, &row, query, dom); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active account: %w", err)
	}

	return accountRowToDomain(&row), nil
}

// GetAll obtiene todas las cuentas de un dominio
func (r *AccountRepository) GetAll(ctx context.Context, dom string) ([]*domain.Account, error) {
	var rows []accountRow

	query := `
		SELECT * FROM accounts
		WHERE domain = ?
		ORDER BY is_active DESC, last_used DESC, name ASC
	`

	if err := r.db.SelectContext(ctx, &rows, query, dom); err != nil {
		return nil, fmt.Errorf("get all accounts: %w", err)
	}

	return accountRowsToDomain(rows), nil
}

// ListDomains lista todos los dominios con cuentas
func (r *AccountRepository) ListDomains(ctx context.Context) ([]string, error) {
	var domains []string

	query := `SELECT DISTINCT domain FROM accounts ORDER BY domain`
	if err := r.db.SelectContext(ctx, &domains, query); err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}

	return domains, nil
}

// SetActive establece una cuenta como activa y desactiva las demás del dominio
func (r *AccountRepository) SetActive(ctx context.Context, dom, name string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts SET is_active = 0 WHERE domain = ?
	`, dom); err != nil {
		return fmt.Errorf("deactivate accounts: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET is_active = 1, last_used = ?
		WHERE domain = ? AND name = ?
	`, time.Now().Unix(), dom, name)
	if err != nil {
		return fmt.Errorf("activate account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("account not found: %s/%s", dom, name)
	}

	return tx.Commit()
}

// UpdateLastUsed actualiza el timestamp de último uso
func (r *AccountRepository) UpdateLastUsed(ctx context.Context, id int64) error {
	query := `UPDATE accounts SET last_used = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, time.Now().Unix(), id)
	return err
}

// UpdateValidation guarda el resultado de la última validación de cookies
func (r *AccountRepository) UpdateValidation(ctx context.Context, id int64, status string, errMsg *string) error {
	query := `UPDATE accounts SET validation_status = ?, validation_error = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, status, errMsg, id)
	return err
}

func accountRowToDomain(row *accountRow) *domain.Account {
	acc := &domain.Account{
		ID:               row.ID,
		Domain:           row.Domain,
		Name:             row.Name,
		CookiePath:       row.CookiePath,
		IsActive:         row.IsActive == 1,
		ValidationStatus: row.ValidationStatus,
		CreatedAt:        time.Unix(row.CreatedAt, 0),
	}

	if row.ValidationError.Valid {
		msg := row.ValidationError.String
		acc.ValidationError = &msg
	}

	if row.LastUsed.Valid {
		t := time.Unix(row.LastUsed.Int64, 0)
		acc.LastUsed = &t
	}

	return acc
}

func accountRowsToDomain(rows []accountRow) []*domain.Account {
	accounts := make([]*domain.Account, 0, len(rows))

	for _, row := range rows {
		accounts = append(accounts, accountRowToDomain(&row))
	}

	return accounts
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
