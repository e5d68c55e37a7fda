// Package server exposes the HTTP surface: account registration, login,
// the conversational chat endpoint, and direct banking endpoints guarded
// by bearer tokens.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/auth"
	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/conversation"
	"github.com/rencie-dev/rencie/internal/model"
)

// AuthService covers registration, login and token verification.
type AuthService interface {
	Register(ctx context.Context, p auth.RegisterParams) (model.Account, error)
	Login(ctx context.Context, accountNumber, password string) (string, error)
	VerifyToken(token string) (auth.Claims, error)
}

// BankService covers the direct (non-conversational) banking endpoints.
type BankService interface {
	Transfer(ctx context.Context, senderAccountNumber, receiverAccountNumber string, amount int64, senderName string) (bank.TransferResult, error)
	CheckBalance(ctx context.Context, accountNumber string) (model.Account, error)
	RequestStatement(accountNumber, name, email string)
}

// Conversation drives one chat turn for an authenticated caller.
type Conversation interface {
	HandleTurn(ctx context.Context, ident conversation.Identity, input string) (string, error)
}

// Server holds the handler dependencies behind one chi router.
type Server struct {
	auth     AuthService
	bank     BankService
	convo    Conversation
	log      *zap.Logger
	validate *validator.Validate
}

func NewServer(authSvc AuthService, bankSvc BankService, convo Conversation, log *zap.Logger) *Server {
	return &Server{
		auth:     authSvc,
		bank:     bankSvc,
		convo:    convo,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler builds the routing table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/accounts", s.handleRegister)
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/chat", s.handleChat)
			r.Post("/transfer", s.handleTransfer)
			r.Get("/balance", s.handleBalance)
			r.Post("/statement", s.handleStatement)
		})
	})

	return r
}
