package handler

import (
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/enum"
)

// PublicOrderStore defines the database methods needed by the public
// status page. Satisfied by *database.Queries.
type PublicOrderStore interface {
	GetPublicOrder(ctx context.Context, arg database.GetPublicOrderParams) (database.GetPublicOrderRow, error)
}

// PublicHandler serves the tokenized customer-facing status page. The page
// exposes no PII: only timestamp, status and amount.
type PublicHandler struct {
	store PublicOrderStore
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(store PublicOrderStore) *PublicHandler {
	return &PublicHandler{store: store}
}

// RegisterRoutes registers the public endpoints on the given Chi router.
func (h *PublicHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders/{id}", h.Status)
}

type publicOrderResponse struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
	Subtotal  int64     `json:"subtotal"`
}

// Status handles GET /public/orders/{id}?token=...
// Responds with HTML by default, JSON when the client asks for it via
// format=json or the Accept header. A bad id and a bad token are
// indistinguishable on the wire.
func (h *PublicHandler) Status(w http.ResponseWriter, r *http.Request) {
	wantJSON := r.URL.Query().Get("format") == "json" ||
		strings.Contains(r.Header.Get("Accept"), "application/json")

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.notFound(w, wantJSON)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		h.notFound(w, wantJSON)
		return
	}

	order, err := h.store.GetPublicOrder(r.Context(), database.GetPublicOrderParams{
		ID:          orderID,
		PublicToken: token,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.notFound(w, wantJSON)
			return
		}
		log.Printf("ERROR: public order lookup: %v", err)
		if wantJSON {
			writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		} else {
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	if wantJSON {
		writeJSON(w, http.StatusOK, publicOrderResponse{
			ID:        order.ID,
			CreatedAt: order.CreatedAt,
			Status:    order.Status,
			Subtotal:  order.Subtotal,
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	data := statusPageData{
		ID:        order.ID.String(),
		CreatedAt: order.CreatedAt.Format("2006-01-02 15:04"),
		Status:    statusLabels[order.Status],
		Subtotal:  decimal.NewFromInt(order.Subtotal).Div(decimal.NewFromInt(100)).StringFixed(2),
	}
	if data.Status == "" {
		data.Status = order.Status
	}
	if err := statusPageTmpl.Execute(w, data); err != nil {
		log.Printf("ERROR: render status page: %v", err)
	}
}

func (h *PublicHandler) notFound(w http.ResponseWriter, wantJSON bool) {
	if wantJSON {
		writeError(w, http.StatusNotFound, enum.CodeNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	statusNotFoundTmpl.Execute(w, nil)
}

var statusLabels = map[string]string{
	enum.OrderStatusPending:    "Oczekuje na realizację",
	enum.OrderStatusInProgress: "W trakcie realizacji",
	enum.OrderStatusFulfilled:  "Zrealizowane",
	enum.OrderStatusCancelled:  "Anulowane",
}

type statusPageData struct {
	ID        string
	CreatedAt string
	Status    string
	Subtotal  string
}

var statusPageTmpl = template.Must(template.New("status-page").Parse(`<!doctype html>
<html lang="pl">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Status zamówienia</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 36rem; margin: 3rem auto; padding: 0 1rem; color: #222; }
dt { font-weight: 600; margin-top: 1rem; }
.status { display: inline-block; padding: .25rem .75rem; border-radius: 1rem; background: #eef; }
</style>
</head>
<body>
<h1>Status zamówienia</h1>
<dl>
<dt>Numer zamówienia</dt><dd>{{.ID}}</dd>
<dt>Data złożenia</dt><dd>{{.CreatedAt}}</dd>
<dt>Status</dt><dd><span class="status">{{.Status}}</span></dd>
<dt>Wartość</dt><dd>{{.Subtotal}} zł</dd>
</dl>
</body>
</html>`))

var statusNotFoundTmpl = template.Must(template.New("status-not-found").Parse(`<!doctype html>
<html lang="pl">
<head><meta charset="utf-8"><title>Nie znaleziono</title></head>
<body style="font-family: system-ui, sans-serif; max-width: 36rem; margin: 3rem auto;">
<h1>Nie znaleziono zamówienia</h1>
<p>Sprawdź, czy link jest kompletny i spróbuj ponownie.</p>
</body>
</html>`))
