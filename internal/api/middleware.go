package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TeacherHeader carries the caller's teacher ID.
const TeacherHeader = "X-Teacher-ID"

type teacherKey struct{}

// BearerAuthMiddleware rejects requests without the static token. An empty
// token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TeacherMiddleware requires a valid X-Teacher-ID and stores it in the
// request context.
func TeacherMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(strings.TrimSpace(r.Header.Get(TeacherHeader)))
		if err != nil || id == uuid.Nil {
			writeError(w, http.StatusBadRequest, "missing or invalid "+TeacherHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), teacherKey{}, id)))
	})
}

func teacherID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(teacherKey{}).(uuid.UUID)
	return id
}
