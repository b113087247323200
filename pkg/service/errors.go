package service

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/storage"
)

// Kind classifies a mutation failure. Every kind aborts the enclosing
// transaction and is surfaced unretried at the API boundary.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindConflict
	KindPermission
)

// Error is a kinded service error.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func permissionf(format string, args ...interface{}) error {
	return &Error{Kind: KindPermission, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, unwrapping as needed. Raw storage
// not-found sentinels count as KindNotFound. Unclassified errors return 0.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, storage.ErrNotFound) {
		return KindNotFound
	}
	return 0
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsPermission reports whether err is a role/permission failure.
func IsPermission(err error) bool { return KindOf(err) == KindPermission }

// HTTPStatus maps an error to the status code the REST layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
