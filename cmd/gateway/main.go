package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/blindgrade/blindgrade/internal/api/http"
	"github.com/blindgrade/blindgrade/internal/audit"
	auth "github.com/blindgrade/blindgrade/internal/auth/middleware"
	"github.com/blindgrade/blindgrade/internal/config"
	"github.com/blindgrade/blindgrade/internal/db"
	"github.com/blindgrade/blindgrade/internal/rbac"
	"github.com/blindgrade/blindgrade/internal/storage"
	"github.com/blindgrade/blindgrade/internal/submission"
	"github.com/blindgrade/blindgrade/internal/vault"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := seedAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	// --- Vault (single process-wide key/IV, loaded once) ---
	v, err := vault.New([]byte(cfg.VaultKey), []byte(cfg.VaultIV))
	if err != nil {
		log.Fatalf("vault: %v", err)
	}

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	store := submission.NewSQLStore(dbh, cfg.DBDriver)
	trail := audit.NewRepo(dbh)
	svc := submission.NewService(store, v, bs, trail, cfg.AnonPrefix)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// Protected API (JWT -> subject+role in context -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Contest administration
		pr.With(rbac.Require("contest:create")).
			Post("/contests", api.UpsertContestHandler(store))
		pr.With(rbac.RequireAny("submission:create", "submission:read-assigned", "contest:list")).
			Get("/contests", api.ListContestsHandler(store))
		pr.With(rbac.RequireAny("submission:create", "submission:read-assigned", "contest:list")).
			Get("/contests/{contestID}", api.GetContestHandler(store))

		// Submitter flow
		pr.With(rbac.Require("submission:create")).
			Post("/contests/{contestID}/submissions", api.IntakeHandler(svc))
		pr.With(rbac.RequireAny("submission:phase", "submission:read-assigned")).
			Get("/submissions/{submissionID}/phase", api.GetPhaseHandler(svc))
		pr.With(rbac.Require("submission:replace")).
			Put("/submissions/{submissionID}/artifact", api.ReplaceHandler(svc))

		// Grader flow
		pr.With(rbac.Require("artifact:download")).
			Get("/submissions/{submissionID}/artifact", api.DownloadArtifactHandler(svc))
		pr.With(rbac.Require("correction:submit")).
			Post("/submissions/{submissionID}/correction", api.SubmitCorrectionHandler(svc))

		// Admin workflow
		pr.With(rbac.Require("submission:list")).
			Get("/contests/{contestID}/submissions", api.ListSubmissionsHandler(svc))
		pr.With(rbac.Require("attribution:manage")).
			Post("/submissions/{submissionID}/attribution", api.AttributeHandler(svc))
		pr.With(rbac.Require("attribution:manage")).
			Delete("/submissions/{submissionID}/attribution", api.RemoveAttributionHandler(svc))
		pr.With(rbac.Require("attribution:manage")).
			Delete("/graders/{graderID}/attributions", api.DetachGraderHandler(svc))
		pr.With(rbac.Require("correction:validate")).
			Post("/corrections/{correctionID}/validate", api.ValidateCorrectionHandler(svc))
		pr.With(rbac.Require("correction:validate")).
			Post("/corrections/{correctionID}/reject", api.RejectCorrectionHandler(svc))
		pr.With(rbac.Require("submission:purge")).
			Delete("/submissions/{submissionID}", api.PurgeHandler(svc))

		// Users (admin)
		pr.With(rbac.Require("users:manage")).
			Post("/users", api.UpsertUsersHandler(dbh))
		pr.With(rbac.Require("users:manage")).
			Get("/users", api.ListUsersHandler(dbh))

		// Notifications
		pr.With(rbac.Require("notifications:read")).
			Get("/notifications", api.ListNotificationsHandler(store))
		pr.With(rbac.Require("notifications:read")).
			Post("/notifications/{notificationID}/read", api.MarkNotificationReadHandler(store))
	})

	log.Printf("gateway listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}

// seedAdmin makes sure a login exists on first boot.
func seedAdmin(ctx context.Context, dbh *sql.DB, username, passHash string) error {
	_, err := dbh.ExecContext(ctx, `INSERT INTO users (id,username,pass_hash,role)
		VALUES ($1,$2,$3,'admin')
		ON CONFLICT (username) DO NOTHING`,
		"admin", username, passHash)
	return err
}
