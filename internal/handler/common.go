package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: failed to encode JSON response: %v", err)
	}
}

// writeError emits the machine-readable error envelope used across the API.
func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// statusURL builds the tokenized public status link for an order.
// base is PUBLIC_STATUS_BASE when set, otherwise the API origin.
func statusURL(base, orderID, token string) string {
	return strings.TrimRight(base, "/") + "/public/orders/" + orderID +
		"?token=" + url.QueryEscape(token)
}
