package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dje115/choreblimey-sub001/internal/completion"
	"github.com/dje115/choreblimey-sub001/internal/handler"
	"github.com/dje115/choreblimey-sub001/internal/ledger"
	"github.com/dje115/choreblimey-sub001/internal/middleware"
	"github.com/dje115/choreblimey-sub001/internal/redemption"
	"github.com/dje115/choreblimey-sub001/internal/showdown"
	"github.com/dje115/choreblimey-sub001/internal/store"
	"github.com/dje115/choreblimey-sub001/internal/streak"
	ws "github.com/dje115/choreblimey-sub001/internal/websocket"
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	authH       *handler.AuthHandler
	memberH     *handler.MemberHandler
	taskH       *handler.TaskHandler
	walletH     *handler.WalletHandler
	biddingH    *handler.BiddingHandler
	completionH *handler.CompletionHandler
	streakH     *handler.StreakHandler
	redemptionH *handler.RedemptionHandler
	rewardH     *handler.RewardHandler
	settingsH   *handler.SettingsHandler

	familyStore  *store.FamilyStore
	memberStore  *store.MemberStore
	sessionStore *store.SessionStore
	streakCalc   *streak.Calculator
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	familyStore := store.NewFamilyStore(db)
	memberStore := store.NewMemberStore(db)
	sessionStore := store.NewSessionStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)

	wallet := ledger.New(db, logger.With("component", "ledger"))
	bids := showdown.New(db, logger.With("component", "showdown"))
	streaks := streak.New(db, wallet, logger.With("component", "streak"))
	completions := completion.New(db, wallet, bids, streaks, logger.With("component", "completion"))
	redemptions := redemption.New(db, wallet, logger.With("component", "redemption"))

	return &Server{
		db:          db,
		hub:         hub,
		authH:       handler.NewAuthHandler(familyStore, memberStore, sessionStore, logger.With("component", "auth")),
		memberH:     handler.NewMemberHandler(memberStore, hub, logger.With("component", "member")),
		taskH:       handler.NewTaskHandler(taskStore, memberStore, hub, logger.With("component", "task")),
		walletH:     handler.NewWalletHandler(wallet, hub, logger.With("component", "wallet")),
		biddingH:    handler.NewBiddingHandler(bids, hub, logger.With("component", "bidding")),
		completionH: handler.NewCompletionHandler(completions, hub, logger.With("component", "completion_handler")),
		streakH:     handler.NewStreakHandler(streaks, logger.With("component", "streak_handler")),
		redemptionH: handler.NewRedemptionHandler(redemptions, hub, logger.With("component", "redemption_handler")),
		rewardH:     handler.NewRewardHandler(rewardStore, hub, logger.With("component", "reward")),
		settingsH:   handler.NewSettingsHandler(familyStore, hub, logger.With("component", "settings")),

		familyStore:  familyStore,
		memberStore:  memberStore,
		sessionStore: sessionStore,
		streakCalc:   streaks,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// FamilyStore returns the family store for the daily sweep walk.
func (s *Server) FamilyStore() *store.FamilyStore {
	return s.familyStore
}

// StreakCalculator returns the streak calculator for the daily sweep.
func (s *Server) StreakCalculator() *streak.Calculator {
	return s.streakCalc
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/register", s.rateLimitedHandler(s.authH.Register))
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.memberStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	parent := middleware.RequireParent

	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Members
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.HandleFunc("GET /api/members/{id}", s.memberH.Get)
	mux.Handle("POST /api/members", parent(http.HandlerFunc(s.memberH.Create)))
	mux.Handle("PUT /api/members/{id}", parent(http.HandlerFunc(s.memberH.Update)))

	// Tasks and assignments
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("POST /api/tasks", parent(http.HandlerFunc(s.taskH.Create)))
	mux.Handle("PUT /api/tasks/{id}", parent(http.HandlerFunc(s.taskH.Update)))
	mux.Handle("DELETE /api/tasks/{id}", parent(http.HandlerFunc(s.taskH.Deactivate)))
	mux.HandleFunc("GET /api/assignments", s.taskH.ListAssignments)
	mux.Handle("POST /api/assignments", parent(http.HandlerFunc(s.taskH.CreateAssignment)))

	// Bidding
	mux.HandleFunc("POST /api/assignments/{id}/bids", s.biddingH.Compete)
	mux.HandleFunc("GET /api/assignments/{id}/bids", s.biddingH.ListBids)
	mux.HandleFunc("GET /api/assignments/{id}/champion", s.biddingH.Champion)

	// Completions
	mux.HandleFunc("POST /api/completions", s.completionH.Submit)
	mux.HandleFunc("GET /api/completions", s.completionH.List)
	mux.HandleFunc("GET /api/completions/{id}", s.completionH.Get)
	mux.Handle("POST /api/completions/{id}/approve", parent(http.HandlerFunc(s.completionH.Approve)))
	mux.Handle("POST /api/completions/{id}/reject", parent(http.HandlerFunc(s.completionH.Reject)))

	// Wallets
	mux.HandleFunc("GET /api/wallets/{id}", s.walletH.Balance)
	mux.HandleFunc("GET /api/wallets/{id}/transactions", s.walletH.Transactions)
	mux.HandleFunc("GET /api/leaderboard", s.walletH.Leaderboard)
	mux.Handle("POST /api/wallets/gift", parent(http.HandlerFunc(s.walletH.Gift)))
	mux.Handle("POST /api/wallets/payout", parent(http.HandlerFunc(s.walletH.Payout)))

	// Streaks
	mux.HandleFunc("GET /api/streaks/{id}", s.streakH.Stats)
	mux.HandleFunc("GET /api/streaks/family", s.streakH.Family)

	// Rewards and redemptions
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("POST /api/rewards", parent(http.HandlerFunc(s.rewardH.Create)))
	mux.Handle("PUT /api/rewards/{id}", parent(http.HandlerFunc(s.rewardH.Update)))
	mux.Handle("DELETE /api/rewards/{id}", parent(http.HandlerFunc(s.rewardH.Delete)))
	mux.HandleFunc("POST /api/redemptions", s.redemptionH.Request)
	mux.HandleFunc("GET /api/redemptions", s.redemptionH.List)
	mux.Handle("POST /api/redemptions/{id}/fulfill", parent(http.HandlerFunc(s.redemptionH.Fulfill)))
	mux.Handle("POST /api/redemptions/{id}/reject", parent(http.HandlerFunc(s.redemptionH.Reject)))

	// Star purchases
	mux.HandleFunc("POST /api/star-purchases", s.redemptionH.RequestStarPurchase)
	mux.HandleFunc("GET /api/star-purchases", s.redemptionH.ListStarPurchases)
	mux.Handle("POST /api/star-purchases/{id}/approve", parent(http.HandlerFunc(s.redemptionH.ApproveStarPurchase)))
	mux.Handle("POST /api/star-purchases/{id}/reject", parent(http.HandlerFunc(s.redemptionH.RejectStarPurchase)))

	// Settings
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.Handle("PUT /api/settings", parent(http.HandlerFunc(s.settingsH.Update)))

	// Real-time updates
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
