package handler

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/enum"
	"github.com/twojapodobizna/api/internal/service"
	"github.com/twojapodobizna/api/internal/upload"
)

// Whole multipart body cap: 30 photos at 10 MiB plus form fields.
const maxIntakeBody = upload.MaxFiles*upload.MaxFileSize + 2<<20

// OrderIntaker defines the service methods needed by the intake handler.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderIntaker interface {
	CreateOrder(ctx context.Context, req service.IntakeRequest) (*service.IntakeResult, error)
}

// PhotoSaver persists uploaded photos to disk before the order transaction.
// Satisfied by *upload.Saver.
type PhotoSaver interface {
	Save(files []*multipart.FileHeader) ([]upload.SavedPhoto, error)
	Cleanup(photos []upload.SavedPhoto)
}

// OrderNotifier sends the customer-facing mail for an order.
// Satisfied by *mail.Mailer.
type OrderNotifier interface {
	OrderConfirmation(order database.Order, items []database.OrderItem, statusURL string)
	StatusUpdate(order database.Order, statusURL string)
}

// EventPublisher pushes order events to the admin live feed.
// Satisfied by *ws.Hub.
type EventPublisher interface {
	OrderCreated(payload any)
	OrderStatusChanged(payload any)
}

// OrderHandler handles the public order intake endpoint.
type OrderHandler struct {
	svc        OrderIntaker
	saver      PhotoSaver
	mailer     OrderNotifier
	events     EventPublisher
	statusBase string
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderIntaker, saver PhotoSaver, mailer OrderNotifier, events EventPublisher, statusBase string) *OrderHandler {
	return &OrderHandler{svc: svc, saver: saver, mailer: mailer, events: events, statusBase: statusBase}
}

type createOrderResponse struct {
	OK        bool   `json:"ok"`
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Subtotal  int64  `json:"subtotal"`
	StatusURL string `json:"status_url"`
}

// Create handles POST /api/orders. The request is multipart/form-data:
// text fields name/email/phone/address/notes, a JSON "cart" field and up
// to 30 "photos" files.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIntakeBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, enum.CodeMissingFields)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}()

	email := r.FormValue("email")
	phone := r.FormValue("phone")
	address := r.FormValue("address")
	notes := r.FormValue("notes")

	// Fail fast on the text fields so invalid submissions never touch disk.
	if err := service.ValidateContact(email, phone, address, notes); err != nil {
		writeError(w, http.StatusBadRequest, validationCode(err))
		return
	}

	cart := service.ParseCart(r.FormValue("cart"))

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["photos"]
	}

	saved, err := h.saver.Save(files)
	if err != nil {
		if code, ok := uploadCode(err); ok {
			writeError(w, http.StatusBadRequest, code)
			return
		}
		log.Printf("ERROR: save photos: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), service.IntakeRequest{
		Name:    r.FormValue("name"),
		Email:   email,
		Phone:   phone,
		Address: address,
		Notes:   notes,
		Cart:    cart,
		Photos:  saved,
	})
	if err != nil {
		h.saver.Cleanup(saved)
		if service.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, validationCode(err))
			return
		}
		log.Printf("ERROR: create order: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	link := statusURL(h.statusBase, result.Order.ID.String(), result.Order.PublicToken)

	// Mail and live feed are best effort; the order is already committed.
	go h.mailer.OrderConfirmation(result.Order, result.Items, link)
	h.events.OrderCreated(map[string]any{
		"id":           result.Order.ID.String(),
		"status":       result.Order.Status,
		"subtotal":     result.Order.Subtotal,
		"photos_count": len(result.Photos),
	})

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OK:        true,
		OrderID:   result.Order.ID.String(),
		Status:    result.Order.Status,
		Subtotal:  result.Order.Subtotal,
		StatusURL: link,
	})
}

// validationCode maps service validation errors to wire error codes.
func validationCode(err error) string {
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return enum.CodeMissingFields
	case errors.Is(err, service.ErrInvalidEmail):
		return enum.CodeInvalidEmail
	case errors.Is(err, service.ErrInvalidPhone):
		return enum.CodeInvalidPhone
	case errors.Is(err, service.ErrInvalidAddress):
		return enum.CodeInvalidAddress
	case errors.Is(err, service.ErrNotesTooShort):
		return enum.CodeNotesTooShort
	case errors.Is(err, service.ErrInvalidCart):
		return enum.CodeInvalidCart
	default:
		return enum.CodeMissingFields
	}
}

// uploadCode maps photo rejection errors to wire error codes. Errors that
// are not client faults (disk failures and the like) report false so the
// handler can answer 500 instead of blaming the upload.
func uploadCode(err error) (string, bool) {
	switch {
	case errors.Is(err, upload.ErrTooManyFiles):
		return enum.CodeTooManyFiles, true
	case errors.Is(err, upload.ErrFileTooLarge):
		return enum.CodeFileTooLarge, true
	case errors.Is(err, upload.ErrInvalidType):
		return enum.CodeInvalidFileType, true
	default:
		return "", false
	}
}
