package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rencie-dev/rencie/internal/model"
)

var (
	// ErrTokenExpired means the session has ended; the caller should log in
	// again.
	ErrTokenExpired = errors.New("your session has ended, try logging in again")

	// ErrTokenInvalid covers any other verification failure.
	ErrTokenInvalid = errors.New("token is invalid, try logging in again")
)

// Claims is the verified identity carried by a token.
type Claims struct {
	AccountNumber string
	Name          string
	Email         string
}

func (s *Service) signToken(acct model.Account) (string, error) {
	now := s.now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"accountNumber": acct.AccountNumber,
		"name":          acct.FirstName,
		"email":         acct.Email,
		"iat":           jwt.NewNumericDate(now),
		"exp":           jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	})

	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and verifies an identity token.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	out := Claims{
		AccountNumber: stringClaim(claims, "accountNumber"),
		Name:          stringClaim(claims, "name"),
		Email:         stringClaim(claims, "email"),
	}
	if out.AccountNumber == "" {
		return Claims{}, ErrTokenInvalid
	}
	return out, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
