package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/twojapodobizna/api/internal/enum"
	"github.com/twojapodobizna/api/internal/pricing"
)

// PaymentHandler creates Stripe Checkout sessions for priced carts.
// Without a secret key it runs in mock mode so the storefront flow can be
// exercised end to end in development.
type PaymentHandler struct {
	secretKey  string
	clientURL  string
	statusBase string
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(secretKey, clientURL, statusBase string) *PaymentHandler {
	return &PaymentHandler{secretKey: secretKey, clientURL: clientURL, statusBase: statusBase}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/checkout/session", h.CreateSession)
	r.Get("/config", h.Config)
}

type checkoutRequest struct {
	Items     []pricing.Line `json:"items"`
	OrderID   string         `json:"order_id"`
	StatusURL string         `json:"last_status_url"`
}

// CreateSession handles POST /api/payments/checkout/session.
// Amounts always come from the server-side price engine; the client only
// names products and options.
func (h *PaymentHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, enum.CodeEmptyItems)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, enum.CodeEmptyItems)
		return
	}

	priced, _, err := pricing.CartTotals(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, cartCode(err))
		return
	}

	if h.secretKey == "" {
		// Mock mode: pretend the payment succeeded immediately.
		writeJSON(w, http.StatusOK, map[string]string{
			"url": strings.TrimRight(h.clientURL, "/") + "/success?mock=1",
		})
		return
	}

	stripe.Key = h.secretKey

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, len(priced))
	for i, line := range priced {
		lineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("pln"),
				UnitAmount: stripe.Int64(line.UnitPrice),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Title),
				},
			},
			Quantity: stripe.Int64(int64(line.Qty)),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:  lineItems,
		SuccessURL: stripe.String(strings.TrimRight(h.clientURL, "/") + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(strings.TrimRight(h.clientURL, "/") + "/cancel"),
	}
	if req.OrderID != "" {
		params.AddMetadata("order_id", req.OrderID)
	}
	if req.StatusURL != "" {
		params.AddMetadata("last_status_url", req.StatusURL)
	}

	sess, err := session.New(params)
	if err != nil {
		log.Printf("ERROR: create checkout session: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": sess.URL})
}

// Config handles GET /api/payments/config so the storefront knows whether
// real payments are live.
func (h *PaymentHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  h.secretKey != "",
		"currency": "pln",
	})
}

// cartCode maps pricing errors to wire error codes.
func cartCode(err error) string {
	switch {
	case errors.Is(err, pricing.ErrUnknownProduct):
		return enum.CodeInvalidProductID
	case errors.Is(err, pricing.ErrInvalidQty):
		return enum.CodeInvalidQty
	default:
		return enum.CodeInvalidCart
	}
}
