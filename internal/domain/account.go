package domain

import "time"

// Account representa un juego de credenciales (cookies) para un dominio
type Account struct {
	ID               int64
	Domain           string
	Name             string
	CookiePath       string
	IsActive         bool
	ValidationStatus string
	ValidationError  *string
	LastUsed         *time.Time
	CreatedAt        time.Time
}

// Estados de validación de las cookies de una cuenta
const (
	ValidationStatusUnknown = "unknown"
	ValidationStatusValid   = "valid"
	ValidationStatusExpired = "expired"
	ValidationStatusInvalid = "invalid"
)
