package handler_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/twojapodobizna/api/internal/database"
)

func doRequest(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// mockNotifier records mail calls. Sends happen on goroutines, so access
// goes through the mutex.
type mockNotifier struct {
	mu            sync.Mutex
	confirmations int
	statusUpdates int
	contacts      int
}

func (m *mockNotifier) OrderConfirmation(order database.Order, items []database.OrderItem, statusURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations++
}

func (m *mockNotifier) StatusUpdate(order database.Order, statusURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusUpdates++
}

func (m *mockNotifier) ContactNotification(email, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts++
}

// mockPublisher records live feed events. The handlers publish
// synchronously so tests can assert directly.
type mockPublisher struct {
	created       []any
	statusChanged []any
}

func (m *mockPublisher) OrderCreated(payload any)       { m.created = append(m.created, payload) }
func (m *mockPublisher) OrderStatusChanged(payload any) { m.statusChanged = append(m.statusChanged, payload) }
