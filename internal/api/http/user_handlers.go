package http

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type userRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"` // submitter | grader | admin
	Password string `json:"password,omitempty"`
}

// POST /users  (admin; accepts a JSON array for bulk setup)
func UpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			http.Error(w, "expected JSON array", http.StatusBadRequest)
			return
		}
		n := 0
		for _, row := range rows {
			switch row.Role {
			case "submitter", "grader", "admin":
			default:
				http.Error(w, "bad role: "+row.Role, http.StatusBadRequest)
				return
			}
			if row.ID == "" {
				row.ID = uuid.NewString()
			}
			hash := ""
			if row.Password != "" {
				b, err := bcrypt.GenerateFromPassword([]byte(row.Password), 12)
				if err != nil {
					http.Error(w, "hash: "+err.Error(), http.StatusInternalServerError)
					return
				}
				hash = string(b)
			}
			_, err := db.ExecContext(r.Context(), `INSERT INTO users (id,username,pass_hash,role)
				VALUES ($1,$2,$3,$4)
				ON CONFLICT (username) DO UPDATE SET role=EXCLUDED.role,
					pass_hash=CASE WHEN EXCLUDED.pass_hash<>'' THEN EXCLUDED.pass_hash ELSE users.pass_hash END`,
				row.ID, row.Username, hash, row.Role)
			if err != nil {
				http.Error(w, "upsert: "+err.Error(), http.StatusInternalServerError)
				return
			}
			n++
		}
		writeJSON(w, map[string]int{"upserted": n})
	}
}

// GET /users  (admin)
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(), `SELECT id,username,role FROM users ORDER BY username`)
		if err != nil {
			http.Error(w, "list: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []userRow{}
		for rows.Next() {
			var u userRow
			if err := rows.Scan(&u.ID, &u.Username, &u.Role); err != nil {
				http.Error(w, "scan: "+err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, u)
		}
		writeJSON(w, out)
	}
}
