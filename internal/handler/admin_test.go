package handler_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/twojapodobizna/api/internal/database"
	"github.com/twojapodobizna/api/internal/handler"
)

// --- Mock store ---

type mockAdminStore struct {
	orders map[uuid.UUID]database.Order
	items  map[uuid.UUID][]database.OrderItem
	photos map[uuid.UUID][]database.OrderPhoto

	listRows   []database.ListOrdersRow
	total      int64
	lastParams database.ListOrdersParams

	// When set, UpdateOrderStatus pretends the row moved underneath us.
	raceOnUpdate bool
}

func newMockAdminStore() *mockAdminStore {
	return &mockAdminStore{
		orders: make(map[uuid.UUID]database.Order),
		items:  make(map[uuid.UUID][]database.OrderItem),
		photos: make(map[uuid.UUID][]database.OrderPhoto),
	}
}

func (m *mockAdminStore) ListOrders(_ context.Context, arg database.ListOrdersParams) ([]database.ListOrdersRow, error) {
	m.lastParams = arg
	return m.listRows, nil
}

func (m *mockAdminStore) CountOrders(_ context.Context, arg database.ListOrdersParams) (int64, error) {
	return m.total, nil
}

func (m *mockAdminStore) GetOrder(_ context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockAdminStore) ListOrderItemsByOrder(_ context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return m.items[orderID], nil
}

func (m *mockAdminStore) ListOrderPhotosByOrder(_ context.Context, orderID uuid.UUID) ([]database.OrderPhoto, error) {
	return m.photos[orderID], nil
}

func (m *mockAdminStore) UpdateOrderStatus(_ context.Context, arg database.UpdateOrderStatusParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || m.raceOnUpdate || o.Status != arg.FromStatus {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = arg.Status
	m.orders[arg.ID] = o
	return o, nil
}

// --- Helpers ---

type adminFixture struct {
	store     *mockAdminStore
	notifier  *mockNotifier
	publisher *mockPublisher
	uploadDir string
	router    *chi.Mux
}

func setupAdmin(t *testing.T, store *mockAdminStore) *adminFixture {
	t.Helper()
	f := &adminFixture{
		store:     store,
		notifier:  &mockNotifier{},
		publisher: &mockPublisher{},
		uploadDir: t.TempDir(),
	}
	h := handler.NewAdminHandler(store, f.notifier, f.publisher, f.uploadDir, "http://localhost:8000", "test-secret")
	f.router = chi.NewRouter()
	f.router.Route("/api/admin", h.RegisterRoutes)
	return f
}

func storedOrder(status string) database.Order {
	return database.Order{
		ID:          uuid.New(),
		CreatedAt:   time.Date(2026, 5, 14, 10, 30, 0, 0, time.UTC),
		Status:      status,
		Email:       "anna@example.com",
		Name:        pgtype.Text{String: "Anna Nowak", Valid: true},
		Phone:       "600700800",
		Address:     "ul. Długa 7",
		Notes:       "A figurine of our dog, please.",
		Subtotal:    55000,
		PublicToken: "tok",
	}
}

// --- List tests ---

func TestAdminList_DefaultsAndHeader(t *testing.T) {
	store := newMockAdminStore()
	store.total = 42
	store.listRows = []database.ListOrdersRow{
		{
			ID:          uuid.New(),
			CreatedAt:   time.Now(),
			Status:      "pending",
			Email:       "anna@example.com",
			Name:        pgtype.Text{String: "Anna", Valid: true},
			Phone:       "600700800",
			Subtotal:    19900,
			PhotosCount: 3,
		},
	}
	f := setupAdmin(t, store)

	rr := doRequest(t, f.router, "GET", "/api/admin/orders", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("X-Total-Count"); got != "42" {
		t.Errorf("X-Total-Count = %q", got)
	}
	resp := decodeJSON(t, rr)
	if resp["total"] != float64(42) || resp["page"] != float64(1) || resp["page_size"] != float64(20) {
		t.Errorf("pagination meta = %v", resp)
	}
	items, _ := resp["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	first, _ := items[0].(map[string]interface{})
	if first["photos_count"] != float64(3) {
		t.Errorf("photos_count = %v", first["photos_count"])
	}

	if store.lastParams.Limit != 20 || store.lastParams.Offset != 0 {
		t.Errorf("store params = %+v", store.lastParams)
	}
}

func TestAdminList_FiltersAndPaging(t *testing.T) {
	store := newMockAdminStore()
	f := setupAdmin(t, store)

	rr := doRequest(t, f.router, "GET", "/api/admin/orders?q=anna&from=2026-01-01&to=2026-01-31&sort_by=subtotal&sort_dir=asc&page=3&page_size=10", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	p := store.lastParams
	if p.Search != "anna" || p.SortBy != "subtotal" || p.SortDir != "asc" {
		t.Errorf("params = %+v", p)
	}
	if p.Limit != 10 || p.Offset != 20 {
		t.Errorf("paging: limit %d offset %d", p.Limit, p.Offset)
	}
	if !p.From.Valid || !p.To.Valid {
		t.Error("date range not applied")
	}
	// "to" must cover the whole day.
	if p.To.Time.Before(time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)) {
		t.Errorf("to = %v, want end of day", p.To.Time)
	}
}

func TestAdminList_BadPageRejected(t *testing.T) {
	f := setupAdmin(t, newMockAdminStore())

	rr := doRequest(t, f.router, "GET", "/api/admin/orders?page=0", nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
}

// --- CSV export tests ---

func TestAdminExportCSV(t *testing.T) {
	store := newMockAdminStore()
	store.listRows = []database.ListOrdersRow{
		{
			ID:          uuid.MustParse("11111111-2222-3333-4444-555555555555"),
			CreatedAt:   time.Date(2026, 5, 14, 10, 30, 0, 0, time.UTC),
			Status:      "pending",
			Email:       "anna@example.com",
			Name:        pgtype.Text{String: "Anna, Nowak", Valid: true},
			Phone:       "600700800",
			Subtotal:    55000,
			PhotosCount: 2,
		},
	}
	f := setupAdmin(t, store)

	rr := doRequest(t, f.router, "GET", "/api/admin/orders.csv", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}

	raw := rr.Body.Bytes()
	if !bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("missing UTF-8 BOM")
	}
	body := string(raw[3:])
	if !strings.Contains(body, "\r\n") {
		t.Error("missing CRLF line endings")
	}
	lines := strings.Split(strings.TrimSpace(body), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d: %q", len(lines), body)
	}
	if lines[0] != "id,created_at,status,email,name,phone,subtotal_pln,photos_count" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "550.00") {
		t.Errorf("subtotal not rendered as PLN: %q", lines[1])
	}
	if !strings.Contains(lines[1], `"Anna, Nowak"`) {
		t.Errorf("comma in name not quoted: %q", lines[1])
	}
}

// brokenWriter drops every body write, like a client hanging up mid-export.
type brokenWriter struct {
	*httptest.ResponseRecorder
}

func (w *brokenWriter) Write(b []byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestAdminExportCSV_LogsWriteFailure(t *testing.T) {
	store := newMockAdminStore()
	store.listRows = []database.ListOrdersRow{
		{
			ID:        uuid.New(),
			CreatedAt: time.Date(2026, 5, 14, 10, 30, 0, 0, time.UTC),
			Status:    "pending",
			Email:     "anna@example.com",
			Phone:     "600700800",
			Subtotal:  55000,
		},
	}
	f := setupAdmin(t, store)

	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	req := httptest.NewRequest("GET", "/api/admin/orders.csv", nil)
	f.router.ServeHTTP(&brokenWriter{httptest.NewRecorder()}, req)

	if !strings.Contains(logged.String(), "csv") {
		t.Errorf("truncated export not logged: %q", logged.String())
	}
}

// --- Detail tests ---

func TestAdminGet_Detail(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	store.items[order.ID] = []database.OrderItem{
		{ID: 1, OrderID: order.ID, ProductID: "premium", Title: "Premium figurine", UnitPrice: 55000, Qty: 1, Options: []byte(`{"persons":3}`)},
	}
	store.photos[order.ID] = []database.OrderPhoto{
		{ID: 1, OrderID: order.ID, Filename: "abc.jpg", OriginalName: "dog.jpg", Mime: "image/jpeg", Size: 100},
	}
	f := setupAdmin(t, store)

	rr := doRequest(t, f.router, "GET", "/api/admin/orders/"+order.ID.String(), nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	o, _ := resp["order"].(map[string]interface{})
	if o["email"] != "anna@example.com" || o["status"] != "pending" {
		t.Errorf("order = %v", o)
	}
	items, _ := resp["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("items = %d", len(items))
	}
	photos, _ := resp["photos"].([]interface{})
	if len(photos) != 1 {
		t.Fatalf("photos = %d", len(photos))
	}
	p, _ := photos[0].(map[string]interface{})
	if p["url"] != "/uploads/abc.jpg" {
		t.Errorf("photo url = %v", p["url"])
	}
}

func TestAdminGet_NotFound(t *testing.T) {
	f := setupAdmin(t, newMockAdminStore())

	rr := doRequest(t, f.router, "GET", "/api/admin/orders/"+uuid.NewString(), nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	if resp := decodeJSON(t, rr); resp["error"] != "NOT_FOUND" {
		t.Errorf("error = %v", resp["error"])
	}
}

// --- ZIP tests ---

func TestAdminPhotosZip(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	store.photos[order.ID] = []database.OrderPhoto{
		{ID: 1, OrderID: order.ID, Filename: "f1.jpg", OriginalName: "front photo.jpg", Mime: "image/jpeg", Size: 5},
		{ID: 2, OrderID: order.ID, Filename: "f2.jpg", OriginalName: "../../../etc/passwd", Mime: "image/jpeg", Size: 5},
	}
	f := setupAdmin(t, store)

	for i, name := range []string{"f1.jpg", "f2.jpg"} {
		if err := os.WriteFile(filepath.Join(f.uploadDir, name), []byte("img"+string(rune('0'+i))), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rr := doRequest(t, f.router, "GET", "/api/admin/orders/"+order.ID.String()+"/photos.zip", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Anna_Nowak-order-"+order.ID.String()+"-photos.zip") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("zip entries = %d", len(zr.File))
	}
	if zr.File[0].Name != "Anna_Nowak_01_front_photo.jpg" {
		t.Errorf("entry 0 = %q", zr.File[0].Name)
	}
	if strings.Contains(zr.File[1].Name, "..") || strings.Contains(zr.File[1].Name, "/") {
		t.Errorf("entry 1 not sanitized: %q", zr.File[1].Name)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	content, _ := io.ReadAll(rc)
	rc.Close()
	if string(content) != "img0" {
		t.Errorf("entry content = %q", content)
	}
}

func TestAdminPhotosZip_SkipsMissingFile(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	store.photos[order.ID] = []database.OrderPhoto{
		{ID: 1, OrderID: order.ID, Filename: "gone.jpg", OriginalName: "lost.jpg", Mime: "image/jpeg", Size: 5},
		{ID: 2, OrderID: order.ID, Filename: "here.jpg", OriginalName: "kept.jpg", Mime: "image/jpeg", Size: 5},
	}
	f := setupAdmin(t, store)

	// Only the second photo actually exists on disk.
	if err := os.WriteFile(filepath.Join(f.uploadDir, "here.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	rr := doRequest(t, f.router, "GET", "/api/admin/orders/"+order.ID.String()+"/photos.zip", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	if len(zr.File) != 1 {
		t.Fatalf("zip entries = %d, want 1", len(zr.File))
	}
	if zr.File[0].Name != "Anna_Nowak_02_kept.jpg" {
		t.Errorf("entry = %q", zr.File[0].Name)
	}
}

func TestAdminPhotosZip_NoPhotos(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	f := setupAdmin(t, store)

	rr := doRequest(t, f.router, "GET", "/api/admin/orders/"+order.ID.String()+"/photos.zip", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	if resp := decodeJSON(t, rr); resp["error"] != "NO_PHOTOS" {
		t.Errorf("error = %v", resp["error"])
	}
}

// --- Status update tests ---

func TestAdminUpdateStatus_Success(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	f := setupAdmin(t, store)

	body := strings.NewReader(`{"status":"in_progress"}`)
	rr := doRequest(t, f.router, "PATCH", "/api/admin/orders/"+order.ID.String(), body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if resp["ok"] != true {
		t.Error("ok not true")
	}
	o, _ := resp["order"].(map[string]interface{})
	if o["status"] != "in_progress" {
		t.Errorf("order status = %v", o["status"])
	}
	if link, _ := resp["status_url"].(string); !strings.Contains(link, order.ID.String()) {
		t.Errorf("status_url = %q", link)
	}
	if store.orders[order.ID].Status != "in_progress" {
		t.Error("store not updated")
	}
	if len(f.publisher.statusChanged) != 1 {
		t.Errorf("status_changed events = %d", len(f.publisher.statusChanged))
	}
}

func TestAdminUpdateStatus_PostFallback(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("in_progress")
	store.orders[order.ID] = order
	f := setupAdmin(t, store)

	body := strings.NewReader(`{"status":"fulfilled"}`)
	rr := doRequest(t, f.router, "POST", "/api/admin/orders/"+order.ID.String()+"/status", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if store.orders[order.ID].Status != "fulfilled" {
		t.Error("store not updated via POST fallback")
	}
}

func TestAdminUpdateStatus_UnknownValue(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	f := setupAdmin(t, store)

	body := strings.NewReader(`{"status":"shipped"}`)
	rr := doRequest(t, f.router, "PATCH", "/api/admin/orders/"+order.ID.String(), body)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rr.Code)
	}
	resp := decodeJSON(t, rr)
	if resp["error"] != "INVALID_STATUS" {
		t.Errorf("error = %v", resp["error"])
	}
	allowed, _ := resp["allowed"].([]interface{})
	if len(allowed) != 4 {
		t.Errorf("allowed = %v", resp["allowed"])
	}
}

func TestAdminUpdateStatus_DisallowedTransitions(t *testing.T) {
	tests := []struct {
		from, to string
	}{
		{"pending", "fulfilled"},
		{"fulfilled", "pending"},
		{"fulfilled", "cancelled"},
		{"cancelled", "pending"},
		{"cancelled", "in_progress"},
		{"in_progress", "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			store := newMockAdminStore()
			order := storedOrder(tt.from)
			store.orders[order.ID] = order
			f := setupAdmin(t, store)

			body := strings.NewReader(`{"status":"` + tt.to + `"}`)
			rr := doRequest(t, f.router, "PATCH", "/api/admin/orders/"+order.ID.String(), body)

			if rr.Code != http.StatusConflict {
				t.Fatalf("status: got %d, want 409; body: %s", rr.Code, rr.Body.String())
			}
			if store.orders[order.ID].Status != tt.from {
				t.Error("store changed despite rejected transition")
			}
		})
	}
}

func TestAdminUpdateStatus_RaceReturns409(t *testing.T) {
	store := newMockAdminStore()
	order := storedOrder("pending")
	store.orders[order.ID] = order
	store.raceOnUpdate = true
	f := setupAdmin(t, store)

	body := strings.NewReader(`{"status":"in_progress"}`)
	rr := doRequest(t, f.router, "PATCH", "/api/admin/orders/"+order.ID.String(), body)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rr.Code)
	}
}

func TestAdminUpdateStatus_NotFound(t *testing.T) {
	f := setupAdmin(t, newMockAdminStore())

	body := strings.NewReader(`{"status":"in_progress"}`)
	rr := doRequest(t, f.router, "PATCH", "/api/admin/orders/"+uuid.NewString(), body)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
}

// --- Ticket tests ---

func TestAdminWSTicket(t *testing.T) {
	f := setupAdmin(t, newMockAdminStore())

	rr := doRequest(t, f.router, "POST", "/api/admin/ws-ticket", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSON(t, rr)
	if ticket, _ := resp["ticket"].(string); ticket == "" {
		t.Error("empty ticket")
	}
	if resp["expires_in"] != float64(300) {
		t.Errorf("expires_in = %v", resp["expires_in"])
	}
}
