package clients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/groupcart/internal/models"
)

func TestCatalogClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{ref}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("ref") {
		case "dosa":
			json.NewEncoder(w).Encode(map[string]any{"ref": "dosa", "price": 150})
		case "sold-out":
			json.NewEncoder(w).Encode(map[string]any{"ref": "sold-out", "price": 90, "available": false})
		default:
			http.Error(w, "no such item", http.StatusNotFound)
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewCatalogClient(server.URL+"/", time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		ref       string
		wantPrice int64
		wantErr   bool
	}{
		{name: "known item", ref: "dosa", wantPrice: 150},
		{name: "unavailable", ref: "sold-out", wantErr: true},
		{name: "missing", ref: "nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, err := client.Price(ctx, tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got price %d", price)
				}
				return
			}
			if err != nil {
				t.Fatalf("Price failed: %v", err)
			}
			if price != tt.wantPrice {
				t.Errorf("Price = %d, want %d", price, tt.wantPrice)
			}
		})
	}

	t.Run("status error carries the code", func(t *testing.T) {
		_, err := client.Price(ctx, "nope")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.Status != http.StatusNotFound {
			t.Errorf("Expected 404 StatusError, got %v", err)
		}
	})
}

// orderServer dedupes by Idempotency-Key like the real service.
type orderServer struct {
	mu     sync.Mutex
	byKey  map[string]string
	posts  int
	failOn int
}

func (s *orderServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.posts++
		if s.posts == s.failOn {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		key := r.Header.Get("Idempotency-Key")
		var req models.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || key == "" || req.GroupID != key {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		id, ok := s.byKey[key]
		if !ok {
			id = "ord-" + key
			s.byKey[key] = id
		}
		json.NewEncoder(w).Encode(map[string]string{"order_id": id})
	})
	mux.HandleFunc("GET /orders/by-key/{key}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		id, ok := s.byKey[r.PathValue("key")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"order_id": id})
	})
	return mux
}

func TestOrderClient(t *testing.T) {
	srv := &orderServer{byKey: map[string]string{}, failOn: 1}
	server := httptest.NewServer(srv.handler())
	defer server.Close()

	client := NewOrderClient(server.URL, time.Second)
	ctx := context.Background()
	req := models.OrderRequest{
		GroupID: "g-1",
		SlotID:  "slot-1",
		Items:   []models.CartItem{{ID: "i-1", CatalogRef: "dosa", Quantity: 2, PriceAtTime: 150}},
		Payers:  []models.Obligation{{MemberID: "m-1", Amount: 300}},
		Total:   300,
	}

	if _, found, err := client.LookupOrder(ctx, "g-1"); err != nil || found {
		t.Fatalf("LookupOrder before create: found=%v err=%v", found, err)
	}

	if _, err := client.CreateOrder(ctx, "g-1", req); err == nil {
		t.Fatal("Expected the first create to fail")
	}

	id, err := client.CreateOrder(ctx, "g-1", req)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	again, err := client.CreateOrder(ctx, "g-1", req)
	if err != nil {
		t.Fatalf("CreateOrder retry failed: %v", err)
	}
	if id != again {
		t.Errorf("Expected the same order id for the same key, got %s and %s", id, again)
	}

	got, found, err := client.LookupOrder(ctx, "g-1")
	if err != nil || !found || got != id {
		t.Errorf("LookupOrder = %s, %v, %v", got, found, err)
	}
}
