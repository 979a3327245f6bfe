package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Verifier checks presented admin credentials against the configured secret.
// The secret may be stored as plaintext or as a bcrypt hash (ADMIN_TOKEN_HASH,
// generated with cmd/admintoken).
type Verifier struct {
	token string
	hash  string
}

func NewVerifier(token, hash string) *Verifier {
	return &Verifier{token: strings.TrimSpace(token), hash: strings.TrimSpace(hash)}
}

// Configured reports whether any admin credential is set at all. With no
// credential every admin request is rejected.
func (v *Verifier) Configured() bool {
	return v.token != "" || v.hash != ""
}

// Verify checks a presented token. Comparison is constant-time for the
// plaintext form; the bcrypt form is inherently slow-compare.
func (v *Verifier) Verify(presented string) bool {
	presented = strings.TrimSpace(presented)
	if presented == "" || !v.Configured() {
		return false
	}
	if v.hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(v.token), []byte(presented)) == 1
}

// --- WebSocket tickets ---
//
// Browser WebSocket clients cannot set an Authorization header, so the admin
// feed is opened with a short-lived signed ticket passed as a query
// parameter instead of the long-lived admin secret.

const TicketTTL = 5 * time.Minute

type TicketClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const ticketScope = "admin-feed"

func GenerateTicket(secret string) (string, error) {
	claims := TicketClaims{
		Scope: ticketScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TicketTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateTicket(secret, ticket string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(ticket, &TicketClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.Scope != ticketScope {
		return nil, fmt.Errorf("invalid ticket")
	}
	return claims, nil
}
