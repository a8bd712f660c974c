package handlers

import (
	"net/http"

	"ewallet/internal/config"
	"ewallet/internal/metrics"
	"ewallet/internal/middleware"
	"ewallet/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Handler struct {
	cfg          config.Config
	logger       *zap.Logger
	users        UserService
	wallets      WalletService
	transactions TransactionService
	userLookup   middleware.UserLookup
	hub          *websocket.Hub
}

func New(cfg config.Config, logger *zap.Logger, users UserService, wallets WalletService, transactions TransactionService, userLookup middleware.UserLookup, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:          cfg,
		logger:       logger,
		users:        users,
		wallets:      wallets,
		transactions: transactions,
		userLookup:   userLookup,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(h.logger))
	router.Use(middleware.Metrics)
	router.Use(middleware.Recoverer(h.logger, !h.cfg.IsProduction()))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found - "+r.URL.Path)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	requireAuth := middleware.Auth(h.cfg.JWTSecret, h.userLookup)
	router.Get("/health", h.Health)
	router.Handle("/metrics", metrics.Handler())
	router.Route("/api", func(api chi.Router) {
		api.Get("/health", h.Health)
		api.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/profile", h.Profile)
				r.Put("/profile", h.UpdateProfile)
				r.Delete("/profile", h.DeleteProfile)
				r.Get("/activity", h.Activity)
			})
		})
		api.Route("/wallets", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", h.ListWallets)
			r.Post("/", h.CreateWallet)
			r.Post("/transfer", h.Transfer)
			r.Post("/transfer-by-number", h.TransferByNumber)
			r.Get("/{id}", h.GetWallet)
			r.Delete("/{id}", h.DeleteWallet)
			r.Post("/{id}/deposit", h.Deposit)
			r.Post("/{id}/withdraw", h.Withdraw)
		})
		api.Route("/transactions", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", h.CreateTransaction)
			r.Get("/wallet/{walletId}", h.ListWalletTransactions)
			r.Get("/{id}", h.GetTransaction)
		})
		api.Get("/ws/balances", h.WSBalances)
	})
	return router
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}
