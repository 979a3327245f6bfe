package handler

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/twojapodobizna/api/internal/auth"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/enum"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// CSV export is unpaged; this bound keeps a runaway export from
	// holding a connection forever.
	exportLimit = 10000
)

// allowedTransitions is the order lifecycle. fulfilled and cancelled are
// terminal; cancellation is possible until work is done.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:    {enum.OrderStatusInProgress, enum.OrderStatusCancelled},
	enum.OrderStatusInProgress: {enum.OrderStatusFulfilled, enum.OrderStatusCancelled},
	enum.OrderStatusFulfilled:  {},
	enum.OrderStatusCancelled:  {},
}

func transitionAllowed(from, to string) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AdminOrderStore defines the database methods needed by the admin handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type AdminOrderStore interface {
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error)
	CountOrders(ctx context.Context, arg database.ListOrdersParams) (int64, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderPhotosByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderPhoto, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
}

// AdminHandler handles the authenticated order management endpoints.
type AdminHandler struct {
	store        AdminOrderStore
	mailer       OrderNotifier
	events       EventPublisher
	uploadDir    string
	statusBase   string
	ticketSecret string
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(store AdminOrderStore, mailer OrderNotifier, events EventPublisher, uploadDir, statusBase, ticketSecret string) *AdminHandler {
	return &AdminHandler{
		store:        store,
		mailer:       mailer,
		events:       events,
		uploadDir:    uploadDir,
		statusBase:   statusBase,
		ticketSecret: ticketSecret,
	}
}

// RegisterRoutes registers admin endpoints on the given Chi router.
// Expected to be mounted behind the admin auth middleware.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Get("/orders.csv", h.ExportCSV)
	r.Get("/orders/{id}", h.Get)
	r.Get("/orders/{id}/photos.zip", h.PhotosZip)
	r.Patch("/orders/{id}", h.UpdateStatus)
	// Legacy clients that cannot send PATCH post to the /status suffix.
	r.Post("/orders/{id}/status", h.UpdateStatus)
	r.Post("/ws-ticket", h.WSTicket)
}

// --- Response types ---

type adminOrderRow struct {
	ID          uuid.UUID `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Email       string    `json:"email"`
	Name        *string   `json:"name"`
	Phone       string    `json:"phone"`
	Subtotal    int64     `json:"subtotal"`
	PhotosCount int64     `json:"photos_count"`
}

type adminListResponse struct {
	Items    []adminOrderRow `json:"items"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type adminOrderDetail struct {
	ID          uuid.UUID `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Status      string    `json:"status"`
	Email       string    `json:"email"`
	Name        *string   `json:"name"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	Notes       string    `json:"notes"`
	Subtotal    int64     `json:"subtotal"`
	PublicToken string    `json:"public_token"`
}

type adminItemResponse struct {
	ID        int64           `json:"id"`
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice int64           `json:"unit_price"`
	Qty       int32           `json:"qty"`
	Options   json.RawMessage `json:"options"`
}

type adminPhotoResponse struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	Mime         string `json:"mime"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

type adminDetailResponse struct {
	Order  adminOrderDetail     `json:"order"`
	Items  []adminItemResponse  `json:"items"`
	Photos []adminPhotoResponse `json:"photos"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// --- Handlers ---

// List handles GET /api/admin/orders.
// Query params: q (free text), from/to (YYYY-MM-DD), sort_by, sort_dir,
// page, page_size.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	params, page, pageSize, err := listParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, enum.CodeMissingFields)
		return
	}

	total, err := h.store.CountOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: count orders: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	rows, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	items := make([]adminOrderRow, len(rows))
	for i, row := range rows {
		items[i] = adminOrderRow{
			ID:          row.ID,
			CreatedAt:   row.CreatedAt,
			Status:      row.Status,
			Email:       row.Email,
			Name:        textPtr(row.Name),
			Phone:       row.Phone,
			Subtotal:    row.Subtotal,
			PhotosCount: row.PhotosCount,
		}
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	writeJSON(w, http.StatusOK, adminListResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// ExportCSV handles GET /api/admin/orders.csv with the same filters as List.
// The output targets spreadsheet apps: UTF-8 BOM, CRLF line endings and
// amounts rendered as decimal PLN.
func (h *AdminHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	params, _, _, err := listParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, enum.CodeMissingFields)
		return
	}
	params.Limit = exportLimit
	params.Offset = 0

	rows, err := h.store.ListOrders(r.Context(), params)
	if err != nil {
		log.Printf("ERROR: export orders: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders.csv"`)
	w.WriteHeader(http.StatusOK)

	// BOM so Excel detects UTF-8.
	w.Write([]byte{0xEF, 0xBB, 0xBF})

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	cw.Write([]string{"id", "created_at", "status", "email", "name", "phone", "subtotal_pln", "photos_count"})
	for _, row := range rows {
		name := ""
		if row.Name.Valid {
			name = row.Name.String
		}
		cw.Write([]string{
			row.ID.String(),
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.Status,
			row.Email,
			name,
			row.Phone,
			decimal.NewFromInt(row.Subtotal).Div(decimal.NewFromInt(100)).StringFixed(2),
			strconv.FormatInt(row.PhotosCount, 10),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		// Headers are gone; the export is truncated. Leave a trace.
		log.Printf("ERROR: write orders csv: %v", err)
	}
}

// Get handles GET /api/orders/{id} (admin detail).
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, enum.CodeNotFound)
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, enum.CodeNotFound)
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	photos, err := h.store.ListOrderPhotosByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order photos: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	itemResps := make([]adminItemResponse, len(items))
	for i, it := range items {
		itemResps[i] = adminItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Qty:       it.Qty,
			Options:   json.RawMessage(it.Options),
		}
	}

	photoResps := make([]adminPhotoResponse, len(photos))
	for i, p := range photos {
		photoResps[i] = adminPhotoResponse{
			ID:           p.ID,
			Filename:     p.Filename,
			OriginalName: p.OriginalName,
			Mime:         p.Mime,
			Size:         p.Size,
			URL:          "/uploads/" + p.Filename,
		}
	}

	writeJSON(w, http.StatusOK, adminDetailResponse{
		Order: adminOrderDetail{
			ID:          order.ID,
			CreatedAt:   order.CreatedAt,
			Status:      order.Status,
			Email:       order.Email,
			Name:        textPtr(order.Name),
			Phone:       order.Phone,
			Address:     order.Address,
			Notes:       order.Notes,
			Subtotal:    order.Subtotal,
			PublicToken: order.PublicToken,
		},
		Items:  itemResps,
		Photos: photoResps,
	})
}

// PhotosZip handles GET /api/admin/orders/{id}/photos.zip.
// It streams all reference photos of one order as a single archive with
// predictable, client-readable entry names.
func (h *AdminHandler) PhotosZip(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, enum.CodeNotFound)
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, enum.CodeNotFound)
			return
		}
		log.Printf("ERROR: get order for zip: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	photos, err := h.store.ListOrderPhotosByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order photos for zip: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}
	if len(photos) == 0 {
		writeError(w, http.StatusNotFound, enum.CodeNoPhotos)
		return
	}

	client := safeFilename(clientLabel(order))
	zipName := fmt.Sprintf("%s-order-%s-photos.zip", client, order.ID)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", zipName))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	defer zw.Close()

	for i, p := range photos {
		entry := fmt.Sprintf("%s_%02d_%s", client, i+1, safeFilename(p.OriginalName))
		if err := h.addZipEntry(zw, entry, p.Filename); err != nil {
			if os.IsNotExist(err) {
				// A photo row without its file on disk should not cost the
				// admin the rest of the archive.
				log.Printf("WARN: zip entry %s: missing file %s, skipping", entry, p.Filename)
				continue
			}
			// Headers are gone; all we can do is log and abort the stream.
			log.Printf("ERROR: zip entry %s: %v", entry, err)
			return
		}
	}
}

func (h *AdminHandler) addZipEntry(zw *zip.Writer, entry, filename string) error {
	// filename is server-generated, but never trust it as a path.
	f, err := os.Open(filepath.Join(h.uploadDir, filepath.Base(filename)))
	if err != nil {
		return err
	}
	defer f.Close()

	ew, err := zw.Create(entry)
	if err != nil {
		return err
	}
	_, err = io.Copy(ew, f)
	return err
}

// UpdateStatus handles PATCH /api/admin/orders/{id} and the POST
// /api/admin/orders/{id}/status fallback.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, enum.CodeNotFound)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, enum.CodeInvalidStatus)
		return
	}

	newStatus := strings.TrimSpace(req.Status)
	if !validStatus(newStatus) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   enum.CodeInvalidStatus,
			"allowed": enum.OrderStatuses,
		})
		return
	}

	current, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, enum.CodeNotFound)
			return
		}
		log.Printf("ERROR: get order for status update: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	if !transitionAllowed(current.Status, newStatus) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   enum.CodeInvalidStatus,
			"from":    current.Status,
			"to":      newStatus,
			"allowed": allowedTransitions[current.Status],
		})
		return
	}

	updated, err := h.store.UpdateOrderStatus(r.Context(), database.UpdateOrderStatusParams{
		ID:         orderID,
		Status:     newStatus,
		FromStatus: current.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Status moved between our read and write; the caller retries.
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": enum.CodeInvalidStatus,
			})
			return
		}
		log.Printf("ERROR: update order status: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}

	link := statusURL(h.statusBase, updated.ID.String(), updated.PublicToken)

	go h.mailer.StatusUpdate(updated, link)
	h.events.OrderStatusChanged(map[string]any{
		"id":     updated.ID.String(),
		"status": updated.Status,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"order": map[string]string{
			"id":     updated.ID.String(),
			"status": updated.Status,
		},
		"status_url": link,
	})
}

// WSTicket handles POST /api/admin/ws-ticket. It exchanges the admin
// credential (already checked by the middleware) for a short-lived ticket
// that the browser can put in the WebSocket URL.
func (h *AdminHandler) WSTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := auth.GenerateTicket(h.ticketSecret)
	if err != nil {
		log.Printf("ERROR: generate ws ticket: %v", err)
		writeError(w, http.StatusInternalServerError, enum.CodeServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(auth.TicketTTL.Seconds()),
	})
}

// --- Helpers ---

func listParams(r *http.Request) (database.ListOrdersParams, int, int, error) {
	q := r.URL.Query()

	page := 1
	if s := q.Get("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return database.ListOrdersParams{}, 0, 0, fmt.Errorf("invalid page %q", s)
		}
		page = v
	}

	pageSize := defaultPageSize
	if s := q.Get("page_size"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			return database.ListOrdersParams{}, 0, 0, fmt.Errorf("invalid page_size %q", s)
		}
		pageSize = v
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	params := database.ListOrdersParams{
		Search:  q.Get("q"),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
		Limit:   int32(pageSize),
		Offset:  int32((page - 1) * pageSize),
	}

	if s := q.Get("from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return database.ListOrdersParams{}, 0, 0, fmt.Errorf("invalid from %q", s)
		}
		params.From = pgtype.Timestamptz{Time: t, Valid: true}
	}
	if s := q.Get("to"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return database.ListOrdersParams{}, 0, 0, fmt.Errorf("invalid to %q", s)
		}
		// Inclusive end of day.
		params.To = pgtype.Timestamptz{Time: t.Add(24*time.Hour - time.Nanosecond), Valid: true}
	}

	return params, page, pageSize, nil
}

func validStatus(s string) bool {
	for _, v := range enum.OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

// clientLabel picks the best human label for archive names: the customer
// name when present, otherwise the email local part.
func clientLabel(order database.Order) string {
	if order.Name.Valid && strings.TrimSpace(order.Name.String) != "" {
		return order.Name.String
	}
	if at := strings.IndexByte(order.Email, '@'); at > 0 {
		return order.Email[:at]
	}
	return "client"
}

var unsafeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// safeFilename flattens arbitrary display text into something every OS
// accepts as a file name component.
func safeFilename(s string) string {
	s = strings.TrimSpace(s)
	s = unsafeFilenameRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "file"
	}
	return s
}
