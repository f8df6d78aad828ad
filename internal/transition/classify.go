package transition

import (
	"context"
	"errors"
	"strings"

	"github.com/voicetel/helpdesk-board/internal/database"
	"github.com/voicetel/helpdesk-board/internal/filter"
)

// Class is the user-facing category of a failed remote call.
type Class string

const (
	ClassNone       Class = ""
	ClassValidation Class = "validation"
	ClassNotFound   Class = "not_found"
	ClassForbidden  Class = "forbidden"
	ClassServer     Class = "server"
	ClassGeneric    Class = "generic"
)

var classMessages = map[Class]string{
	ClassValidation: "Data yang dikirim tidak valid.",
	ClassNotFound:   "Tiket tidak ditemukan.",
	ClassForbidden:  "Anda tidak memiliki akses untuk melakukan tindakan ini.",
	ClassServer:     "Terjadi kesalahan pada server. Silakan coba lagi.",
	ClassGeneric:    "Gagal memperbarui status tiket.",
}

// Message returns the text shown to the user.
func (c Class) Message() string {
	return classMessages[c]
}

// Classify maps an error to a Class. Sentinels from the authority adapters
// are checked first; anything else is classified by its message.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}

	var verr *filter.ValidationError
	switch {
	case errors.Is(err, database.ErrRejected), errors.As(err, &verr):
		return ClassValidation
	case errors.Is(err, database.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, database.ErrForbidden):
		return ClassForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return ClassServer
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "validation", "invalid", "422", "400", "bad request"):
		return ClassValidation
	case containsAny(msg, "not found", "404", "no rows"):
		return ClassNotFound
	case containsAny(msg, "forbidden", "unauthorized", "permission", "denied", "403", "401"):
		return ClassForbidden
	case containsAny(msg, "server", "500", "502", "503", "504", "timeout", "connection"):
		return ClassServer
	}
	return ClassGeneric
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// retryable reports whether another status string could succeed where err
// failed. A missing ticket or a permission problem will not change.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch Classify(err) {
	case ClassNotFound, ClassForbidden:
		return false
	}
	return true
}
