package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/rewardledger/internal/auth"
	"github.com/dukerupert/rewardledger/internal/handler"
	"github.com/dukerupert/rewardledger/internal/middleware"
	"github.com/dukerupert/rewardledger/internal/moderation"
	"github.com/dukerupert/rewardledger/internal/store"
	ws "github.com/dukerupert/rewardledger/internal/websocket"
)

type Config struct {
	// AdminTokenHash is the bcrypt hash of the admin API token. Empty
	// disables the admin routes.
	AdminTokenHash string
	// OriginPatterns lists extra hosts allowed to open feed connections.
	OriginPatterns []string
	// SubmitLimit caps proof submissions and withdrawal requests per
	// account per minute.
	SubmitLimit int
	// PushSubscriptions enables the Web Push subscription routes.
	PushSubscriptions *store.PushStore
	VAPIDPublicKey    string
	// Backups enables the admin snapshot routes.
	Backups handler.Backups
}

type Server struct {
	facade      *moderation.Facade
	hub         *ws.Hub
	accountH    *handler.AccountHandler
	taskH       *handler.TaskHandler
	adminH      *handler.AdminHandler
	pushH       *handler.PushHandler
	backupH     *handler.BackupHandler
	rateLimiter *middleware.RateLimiter
	cfg         Config
	logger      *slog.Logger
}

func New(f *moderation.Facade, hub *ws.Hub, cfg Config, logger *slog.Logger) *Server {
	if cfg.SubmitLimit <= 0 {
		cfg.SubmitLimit = 10
	}
	s := &Server{
		facade:      f,
		hub:         hub,
		accountH:    handler.NewAccountHandler(f, logger.With("component", "account")),
		taskH:       handler.NewTaskHandler(f, logger.With("component", "task")),
		adminH:      handler.NewAdminHandler(f, logger.With("component", "admin")),
		rateLimiter: middleware.NewRateLimiter(),
		cfg:         cfg,
		logger:      logger,
	}
	if cfg.PushSubscriptions != nil {
		s.pushH = handler.NewPushHandler(cfg.PushSubscriptions, cfg.VAPIDPublicKey, logger.With("component", "push"))
	}
	if cfg.Backups != nil {
		s.backupH = handler.NewBackupHandler(cfg.Backups, logger.With("component", "backup"))
	}
	return s
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Admin routes: bearer token, then the facade's admin policy on the account id.
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	adminChain := middleware.Identify(middleware.RequireAdminToken(s.cfg.AdminTokenHash)(middleware.RequireAdmin(adminMux)))
	outerMux.Handle("/api/admin/", adminChain)

	// Account routes, acting for the id the transport supplies.
	userMux := http.NewServeMux()
	s.registerAccountRoutes(userMux)
	outerMux.Handle("/", middleware.Identify(userMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rateLimitedHandler limits h per account, with a separate budget per route name.
func (s *Server) rateLimitedHandler(name string, h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return name + ":" + middleware.AccountKey(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, s.cfg.SubmitLimit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// policyAdmin applies the facade's admin policy to routes that do not go
// through a facade operation.
func (s *Server) policyAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.facade.IsAdmin(auth.AccountID(r.Context())) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

func (s *Server) registerAccountRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/accounts", s.accountH.Register)
	mux.HandleFunc("GET /api/me", s.accountH.Me)
	mux.HandleFunc("GET /api/me/history", s.accountH.History)
	mux.HandleFunc("POST /api/withdrawals", s.rateLimitedHandler("withdraw", s.accountH.RequestWithdrawal))

	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Select)
	mux.HandleFunc("POST /api/tasks/{id}/submissions", s.rateLimitedHandler("submit", s.taskH.Submit))

	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
	}

	// WebSocket feed of this account's notifications
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.OriginPatterns))
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/tasks", s.adminH.CreateTask)
	mux.HandleFunc("PUT /api/admin/tasks/{id}/active", s.adminH.SetTaskActive)
	mux.HandleFunc("PUT /api/admin/accounts/{account_id}/blocked", s.adminH.SetBlocked)

	mux.HandleFunc("GET /api/admin/submissions", s.adminH.PendingSubmissions)
	mux.HandleFunc("POST /api/admin/accounts/{account_id}/tasks/{task_id}/decision", s.adminH.DecideTask)
	mux.HandleFunc("POST /api/admin/accounts/{account_id}/submissions/{id}/decision", s.adminH.DecideSubmission)

	mux.HandleFunc("GET /api/admin/withdrawals", s.adminH.PendingWithdrawals)
	mux.HandleFunc("POST /api/admin/accounts/{account_id}/withdrawals/decision", s.adminH.DecidePayout)
	mux.HandleFunc("POST /api/admin/accounts/{account_id}/withdrawals/{id}/decision", s.adminH.DecideWithdrawal)

	mux.HandleFunc("GET /api/admin/stats", s.adminH.Stats)

	if s.backupH != nil {
		mux.HandleFunc("GET /api/admin/backup", s.policyAdmin(s.backupH.Status))
		mux.HandleFunc("POST /api/admin/backup", s.policyAdmin(s.backupH.Run))
	}

	// WebSocket feed of every ledger event
	mux.HandleFunc("GET /api/admin/ws", s.policyAdmin(ws.HandleWebSocket(s.hub, s.cfg.OriginPatterns)))
}
