// internal/httpserver/server.go
//
// HTTP server wiring for the memory backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/boards".
//   - Game endpoints (optional auth): /game/new, /game/{id}, flip, reset, leave, ws stream.
//     {"daily": true} deals the board of the day (same layout for everyone).
//   - Records endpoints (optional auth): /records, /leaderboard.
//   - Auth + profile/stat endpoints (require auth): /auth/*, /stats/me, /games/mine.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Every game is owned by the user id or anonymous cookie id that created it;
//     any other caller gets the same 404 as for a missing game.
//   - The websocket route sits outside the request timeout group.

package httpserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/padel-memory/internal/config"
	"github.com/robalobadob/padel-memory/internal/game"
	"github.com/robalobadob/padel-memory/internal/images"
	"github.com/robalobadob/padel-memory/internal/records"
	"github.com/robalobadob/padel-memory/internal/store"
)

// Server bundles router, live game registry, and DB-backed stores.
type Server struct {
	r       *chi.Mux
	store   store.Store
	db      *sql.DB
	records *records.Store
	game    config.Game

	// pool resolves an image set to its asset refs.
	pool func(set int) []string
	// sched drives engine timers; nil means wall clock.
	sched     game.Scheduler
	now       func() time.Time
	dailySalt string
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, db *sql.DB, g config.Game) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		store:   st,
		db:      db,
		records: records.NewStore(db),
		game:    g,

		pool:      func(set int) []string { return images.Resolve(g.AssetRoot, set, images.Names()) },
		now:       time.Now,
		dailySalt: config.GetEnv("DAILY_SALT", "local_dev_salt"),
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID) // add X-Request-ID
	s.r.Use(chimw.RealIP)    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer) // recover from panics
	s.r.Use(corsFromEnv)     // credentials-friendly CORS

	// Long-lived snapshot stream; must not inherit the handler timeout.
	s.r.With(s.withOptionalAuth()).Get("/game/{id}/ws", s.handleStream)

	s.r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
		r.Use(jsonContentType)                 // default JSON responses

		// --- diagnostics ---
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"service":"memory-go","endpoints":["/health","/boards","POST /game/new","/game/{id}","/records","/leaderboard","/auth/*"]}`))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		})
		r.Get("/boards", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"boards":     game.Boards,
				"minPlayers": game.MinPlayers,
				"maxPlayers": game.MaxPlayers,
			})
		})
		r.Get("/debug/images", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]int{"images": images.Stats(), "sets": s.game.ImageSets})
		})

		// Game endpoints: OPTIONAL AUTH (guests can play)
		s.mountGame(r.With(s.withOptionalAuth()))

		// Best times and leaderboard: OPTIONAL AUTH
		s.mountRecords(r.With(s.withOptionalAuth()))

		// Auth + profile/stats
		s.mountAuthRoutes(r)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found", "path": r.URL.Path})
	})

	return s
}

// HTTPServer returns an http.Server serving the router on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Close ends every live game. Completion hooks already running finish
// first, so the database can be closed afterwards.
func (s *Server) Close() {
	s.store.Close()
}

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := clientOrigin()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientOrigin() string {
	return config.GetEnv("CLIENT_ORIGIN", "http://localhost:5173")
}

// ------------------------------- helpers -----------------------------------

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// writeError writes {"error": code}.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
