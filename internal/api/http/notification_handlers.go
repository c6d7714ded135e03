package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	authmw "github.com/blindgrade/blindgrade/internal/auth/middleware"
	"github.com/blindgrade/blindgrade/internal/submission"
)

// GET /notifications?unread=1
func ListNotificationsHandler(store submission.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := authmw.SubjectFromContext(r.Context())
		unreadOnly := r.URL.Query().Get("unread") == "1"
		out, err := store.ListNotifications(r.Context(), user, unreadOnly)
		if err != nil {
			writeErr(w, err)
			return
		}
		if out == nil {
			out = []submission.Notification{}
		}
		writeJSON(w, out)
	}
}

// POST /notifications/{notificationID}/read
func MarkNotificationReadHandler(store submission.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := authmw.SubjectFromContext(r.Context())
		if err := store.MarkNotificationRead(r.Context(), chi.URLParam(r, "notificationID"), user); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}
