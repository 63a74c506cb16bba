package repository

import (
	"context"

	"github.com/elsanchez/resfetch/internal/domain"
)

// AccountRepository define las operaciones sobre cuentas de cookies
type AccountRepository interface {
	// CRUD básico
	Create(ctx context.Context, acc *domain.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	Update(ctx context.Context, acc *domain.Account) error
	Delete(ctx context.Context, id int64) error

	// Queries por dominio
	GetActive(ctx context.Context, domain string) (*domain.Account, error)
	GetAll(ctx context.Context, domain string) ([]*domain.Account, error)
	ListDomains(ctx context.Context) ([]string, error)

	// Gestión de cuenta activa
	SetActive(ctx context.Context, domain, name string) error
	UpdateLastUsed(ctx context.Context, id int64) error
	UpdateValidation(ctx context.Context, id int64, status string, errMsg *string) error
}
