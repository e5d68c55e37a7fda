package server

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rencie-dev/rencie/internal/auth"
	"github.com/rencie-dev/rencie/internal/bank"
	"github.com/rencie-dev/rencie/internal/conversation"
	"github.com/rencie-dev/rencie/internal/money"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	DOB       string `json:"dob" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	Email     string `json:"email" validate:"required,email"`
}

type accountResponse struct {
	AccountNumber string `json:"account_number"`
	Name          string `json:"name"`
	Balance       string `json:"balance"`
	Currency      string `json:"currency"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	acct, err := s.auth.Register(r.Context(), auth.RegisterParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		DOB:       req.DOB,
		Password:  req.Password,
		Email:     req.Email,
	})
	if err != nil {
		if errors.Is(err, auth.ErrAccountExists) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error("registering account", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	s.writeJSON(w, http.StatusCreated, accountResponse{
		AccountNumber: acct.AccountNumber,
		Name:          acct.FullName(),
		Balance:       money.Format(acct.Balance),
		Currency:      acct.Currency,
	})
}

type loginRequest struct {
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	Password      string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	token, err := s.auth.Login(r.Context(), req.AccountNumber, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		s.log.Error("logging in", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not log in")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req chatRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	reply, err := s.convo.HandleTurn(r.Context(), conversation.Identity{
		AccountNumber: claims.AccountNumber,
		Name:          claims.Name,
		Email:         claims.Email,
	}, req.Message)
	if err != nil {
		s.log.Error("handling chat turn", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

type transferRequest struct {
	ReceiverAccountNumber string `json:"receiver_account_number" validate:"required,len=10,numeric"`
	Amount                int64  `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req transferRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.bank.Transfer(r.Context(), claims.AccountNumber, req.ReceiverAccountNumber, req.Amount, claims.Name)
	if err != nil {
		status, message := transferFailure(err)
		if status == http.StatusInternalServerError {
			s.log.Error("transferring funds", zap.Error(err))
		}
		s.writeError(w, status, message)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":         "success",
		"transaction_id": result.TransactionID,
		"new_balance":    money.FormatWithCurrency(result.Currency, result.NewBalance),
	})
}

// transferFailure maps bank sentinels onto HTTP statuses. Unknown errors
// stay opaque to the caller.
func transferFailure(err error) (int, string) {
	switch {
	case errors.Is(err, bank.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity, "insufficient funds"
	case errors.Is(err, bank.ErrReceiverNotFound), errors.Is(err, bank.ErrAccountNotFound):
		return http.StatusNotFound, "receiver account not found"
	case errors.Is(err, bank.ErrSelfTransfer):
		return http.StatusBadRequest, "cannot transfer to your own account"
	case errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidSenderAccount),
		errors.Is(err, bank.ErrInvalidReceiverAccount):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "could not complete transfer"
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	acct, err := s.bank.CheckBalance(r.Context(), claims.AccountNumber)
	if err != nil {
		s.log.Error("checking balance", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "could not fetch balance")
		return
	}

	s.writeJSON(w, http.StatusOK, accountResponse{
		AccountNumber: acct.AccountNumber,
		Name:          acct.FullName(),
		Balance:       money.Format(acct.Balance),
		Currency:      acct.Currency,
	})
}

func (s *Server) handleStatement(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	s.bank.RequestStatement(claims.AccountNumber, claims.Name, claims.Email)
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "your statement will be sent to your email shortly",
	})
}
