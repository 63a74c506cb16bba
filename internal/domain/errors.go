package domain

import (
	"errors"
	"fmt"
)

// ErrorKind clasifica los fallos por candidato o por plantilla
type ErrorKind string

const (
	KindNetwork            ErrorKind = "network"
	KindAuth               ErrorKind = "auth"
	KindNotFound           ErrorKind = "not_found"
	KindDecode             ErrorKind = "decode"
	KindHeuristicRejection ErrorKind = "heuristic_rejection"
	KindInvalidInput       ErrorKind = "invalid_input"
	KindUnexpectedStatus   ErrorKind = "unexpected_status"
	KindDisallowed         ErrorKind = "disallowed"
	KindConfig             ErrorKind = "config"
	KindCanceled           ErrorKind = "canceled"
)

// Error es un error clasificado con el contexto de la operación
type Error struct {
	Kind   ErrorKind
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError construye un error clasificado
func NewError(kind ErrorKind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// StatusError clasifica un status HTTP no exitoso
func StatusError(op, url string, status int) *Error {
	return &Error{Kind: KindForStatus(status), Op: op, URL: url, Status: status}
}

// KindForStatus mapea un status HTTP a su ErrorKind
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 404:
		return KindNotFound
	default:
		return KindUnexpectedStatus
	}
}

// KindOf extrae el ErrorKind de un error; "" si no está clasificado
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsConfigError indica si el error debe abortar la tarea
func IsConfigError(err error) bool {
	return KindOf(err) == KindConfig
}
