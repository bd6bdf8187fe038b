package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/chorechamp/internal/auth"
	"github.com/dukerupert/chorechamp/internal/database"
	"github.com/dukerupert/chorechamp/internal/handler"
	"github.com/dukerupert/chorechamp/internal/middleware"
	"github.com/dukerupert/chorechamp/internal/store"
	ws "github.com/dukerupert/chorechamp/internal/websocket"
)

// Options carries the runtime settings the router needs beyond the database.
// Zero rate limits fall back to the defaults below.
type Options struct {
	Tokens      *auth.TokenIssuer
	Mailer      handler.Mailer
	Location    *time.Location
	CORSOrigins []string
	Limits      Limits
}

// Limits are the per-route request budgets.
type Limits struct {
	Login    middleware.Limit
	Register middleware.Limit
	Invite   middleware.Limit
}

var defaultLimits = Limits{
	Login:    middleware.Limit{Requests: 10, Window: time.Minute},
	Register: middleware.Limit{Requests: 10, Window: time.Minute},
	Invite:   middleware.Limit{Requests: 20, Window: time.Hour},
}

func (l Limits) withDefaults() Limits {
	return Limits{
		Login:    l.Login.Or(defaultLimits.Login),
		Register: l.Register.Or(defaultLimits.Register),
		Invite:   l.Invite.Or(defaultLimits.Invite),
	}
}

type Server struct {
	db          *sql.DB
	userStore   *store.UserStore
	tokens      *auth.TokenIssuer
	corsOrigins []string
	limits      Limits
	hub         *ws.Hub
	authH       *handler.AuthHandler
	choreH      *handler.ChoreHandler
	householdH  *handler.HouseholdHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	userStore := store.NewUserStore(db)
	choreStore := store.NewChoreStore(db)
	householdStore := store.NewHouseholdStore(db)

	hub := ws.NewHub(logger.With("component", "websocket"))

	return &Server{
		db:          db,
		userStore:   userStore,
		tokens:      opts.Tokens,
		corsOrigins: opts.CORSOrigins,
		limits:      opts.Limits.withDefaults(),
		hub:         hub,
		authH:       handler.NewAuthHandler(userStore, opts.Tokens, opts.Mailer, logger.With("component", "auth")),
		choreH:      handler.NewChoreHandler(choreStore, userStore, householdStore, opts.Mailer, hub, opts.Location, logger.With("component", "chore")),
		householdH:  handler.NewHouseholdHandler(householdStore, userStore, opts.Mailer, hub, logger.With("component", "household")),
		rateLimiter: middleware.NewRateLimiter(),
		logger:      logger,
	}
}

// RateLimiter returns the server's rate limiter for periodic cleanup.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.Handle("POST /api/auth/register/parent", s.limitByIP("register", s.limits.Register, s.authH.RegisterParent))
	outerMux.Handle("POST /api/auth/login", s.limitByIP("login", s.limits.Login, s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.userStore, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	var h http.Handler = outerMux
	h = middleware.CORS(s.corsOrigins)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		body["status"], code = "unavailable", http.StatusServiceUnavailable
	} else if v, err := database.SchemaVersion(s.db); err == nil {
		body["schema"] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) limitByIP(scope string, l middleware.Limit, h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.KeyByIP(scope), l)(h)
}

// limitByUser budgets an authenticated route per account; it must sit inside
// RequireAuth.
func (s *Server) limitByUser(scope string, l middleware.Limit, h http.Handler) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.KeyByUser(scope), l)(h)
}

// parent wraps h so that only parent accounts reach it.
func parent(h http.HandlerFunc) http.Handler {
	return middleware.RequireParent(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Auth routes that require authentication
	mux.Handle("POST /api/auth/register/child", parent(s.authH.RegisterChild))
	mux.HandleFunc("GET /api/auth/profile", s.authH.Profile)
	mux.HandleFunc("PUT /api/auth/user/{id}", s.authH.UpdateProfile)
	mux.Handle("GET /api/auth/children", parent(s.authH.Children))
	mux.Handle("PATCH /api/auth/child/{id}", parent(s.authH.UpdateChild))
	mux.Handle("DELETE /api/auth/children/{id}", parent(s.authH.DeleteChild))
	mux.HandleFunc("GET /api/users/{id}", s.authH.GetUser)

	// Chore API routes
	mux.HandleFunc("GET /api/chores", s.choreH.List)
	mux.Handle("POST /api/chores", parent(s.choreH.Create))
	mux.Handle("POST /api/chores/rotate", parent(s.choreH.Rotate))
	mux.HandleFunc("GET /api/chores/assigned/{childId}", s.choreH.Assigned)
	mux.HandleFunc("GET /api/chores/{id}", s.choreH.Get)
	mux.Handle("PUT /api/chores/{id}", parent(s.choreH.Update))
	mux.Handle("DELETE /api/chores/{id}", parent(s.choreH.Delete))
	mux.Handle("PATCH /api/chores/{id}/assign", parent(s.choreH.Assign))
	mux.Handle("PATCH /api/chores/{id}/unassign", parent(s.choreH.Unassign))
	mux.Handle("PATCH /api/chores/{id}/lock", parent(s.choreH.Lock))
	mux.Handle("PATCH /api/chores/{id}/verify", parent(s.choreH.Verify))
	mux.HandleFunc("PATCH /api/chores/{id}/complete", s.choreH.Complete)
	mux.HandleFunc("PATCH /api/chores/{id}/undo", s.choreH.Undo)

	// Household API routes
	mux.Handle("POST /api/household", parent(s.householdH.Create))
	mux.HandleFunc("GET /api/household", s.householdH.Get)
	mux.Handle("GET /api/household/all", parent(s.householdH.All))
	mux.Handle("PUT /api/household", parent(s.householdH.Update))
	mux.Handle("GET /api/household/available-children", parent(s.householdH.AvailableChildren))
	mux.Handle("POST /api/household/invite", s.limitByUser("invite", s.limits.Invite, parent(s.householdH.Invite)))
	mux.Handle("POST /api/household/join/{token}", parent(s.householdH.Join))
	mux.Handle("POST /api/household/add-children", parent(s.householdH.AddChildren))
	mux.Handle("DELETE /api/household/children/{childId}", parent(s.householdH.RemoveChild))
	mux.Handle("DELETE /api/household/parents/{userId}", parent(s.householdH.RemoveParent))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.corsOrigins, s.logger.With("component", "websocket")))
}
