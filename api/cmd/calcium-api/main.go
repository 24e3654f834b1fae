package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/joho/godotenv"

	"calcium-cam/api/internal/config"
	"calcium-cam/api/internal/estimate"
	"calcium-cam/api/internal/estimate/gemini"
	"calcium-cam/api/internal/estimate/openai"
	"calcium-cam/api/internal/httpapi"
	"calcium-cam/api/internal/localization"
	"calcium-cam/api/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Resolve()

	// --- Postgres (optional) ---
	var (
		db       *sql.DB
		suggRepo *store.SuggestionRepo
		locRepo  *store.LocalizationRepo
	)
	if dsn := cfg.DatabaseURL; dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("sql.Open: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("db.Ping: %v", err)
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("db schema: %v", err)
		}
		cancel()
		log.Printf("db connected: %s", safeDSNSummary(dsn))

		suggRepo = store.NewSuggestionRepo(db)
		locRepo = store.NewLocalizationRepo(db)
	} else {
		log.Printf("DATABASE_URL not set; suggestions and localization packs are unpersisted")
	}

	svc := estimate.NewService(openai.New(), gemini.New())
	loc := &localization.Service{Repo: locRepo, BaseURL: cfg.LocalizationBaseURL}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("db: not ok\n" + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	h := httpapi.New(svc, suggRepo, loc)
	h.Register(mux)

	addr := ":" + cfg.Port
	log.Printf("calcium-api listening on %s (env=%s provider=%s mock=%v)", addr, cfg.Env, cfg.Provider, cfg.UseMock)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}
