package handler

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/enum"
)

var contactEmailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)

// ContactStore defines the database methods needed by the contact handler.
// Satisfied by *database.Queries.
type ContactStore interface {
	CreateContactMessage(ctx context.Context, arg database.CreateContactMessageParams) (database.ContactMessage, error)
}

// ContactNotifier forwards contact messages to the shop owner.
// Satisfied by *mail.Mailer.
type ContactNotifier interface {
	ContactNotification(email, message string)
}

// ContactHandler handles the public contact form.
type ContactHandler struct {
	store  ContactStore
	mailer ContactNotifier
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(store ContactStore, mailer ContactNotifier) *ContactHandler {
	return &ContactHandler{store: store, mailer: mailer}
}

// RegisterRoutes registers the contact endpoint on the given Chi router.
func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
}

type contactRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Create handles POST /api/contact. The sender IP is stored alongside the
// message for abuse follow-up.
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, enum.CodeMissingFields)
		return
	}

	email := strings.TrimSpace(req.Email)
	message := strings.TrimSpace(req.Message)
	if email == "" || message == "" {
		writeError(w, http.StatusBadRequest, enum.CodeMissingFields)
		return
	}
	if !contactEmailRe.MatchString(email) {
		writeError(w, http.StatusBadRequest, enum.CodeInvalidEmail)
		return
	}

	ip := pgtype.Text{}
	if addr := clientIP(r); addr != "" {
		ip = pgtype.Text{String: addr, Valid: true}
	}

	msg, err := h.store.CreateContactMessage(r.Context(), database.CreateContactMessageParams{
		ID:      uuid.New(),
		Email:   email,
		Message: message,
		IP:      ip,
	})
	if err != nil {
		log.Printf("ERROR: create contact message: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	go h.mailer.ContactNotification(email, message)

	writeJSON(w, http.StatusCreated, map[string]any{
		"ok": true,
		"id": msg.ID.String(),
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
