package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rifat-hasan/usergate/services/order-service/internal/model"
	"github.com/rifat-hasan/usergate/services/order-service/internal/storage"
	orsync "github.com/rifat-hasan/usergate/services/order-service/internal/sync"
)

// fakeStore backs both the HTTP handlers and the sync reconciler so
// the consistency-propagation path can be exercised end to end.
type fakeStore struct {
	orders []model.Order
	seq    int
}

func (s *fakeStore) Create(_ context.Context, items []model.Item, userEmail, deliveryAddress string) (model.Order, error) {
	s.seq++
	o := model.Order{
		ID:              "o-" + strconv.Itoa(s.seq),
		Items:           items,
		UserEmail:       userEmail,
		DeliveryAddress: deliveryAddress,
		Status:          model.StatusUnderProcess,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	s.orders = append(s.orders, o)
	return o, nil
}

func (s *fakeStore) List(_ context.Context, status string) ([]model.Order, error) {
	if status == "" {
		return s.orders, nil
	}
	var out []model.Order
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id, status string) (model.Order, error) {
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			s.orders[i].UpdatedAt = time.Now()
			return s.orders[i], nil
		}
	}
	return model.Order{}, storage.ErrNotFound
}

func (s *fakeStore) ReassignEmail(_ context.Context, oldEmail, newEmail, newAddress string) (int64, error) {
	var n int64
	for i := range s.orders {
		if s.orders[i].UserEmail == oldEmail {
			s.orders[i].UserEmail = newEmail
			s.orders[i].DeliveryAddress = newAddress
			n++
		}
	}
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.Register(mux)
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	return rw
}

func TestCreateAndList_RoundTrip(t *testing.T) {
	store := &fakeStore{}
	h := New(store, testLogger())

	body := `{"items":[{"itemId":"sku-1","qty":2}],"userEmail":"a@x.com","deliveryAddress":"12 High St"}`
	rw := serve(h, http.MethodPost, "/orders", body)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}

	rw = serve(h, http.MethodGet, "/orders?status=under+process", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var got []model.Order
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 order, got %d", len(got))
	}
	o := got[0]
	if o.UserEmail != "a@x.com" || o.DeliveryAddress != "12 High St" || o.Status != model.StatusUnderProcess {
		t.Fatalf("round trip mismatch: %+v", o)
	}
	if len(o.Items) != 1 || o.Items[0].ItemID != "sku-1" || o.Items[0].Qty != 2 {
		t.Fatalf("items mismatch: %+v", o.Items)
	}
}

func TestCreate_MissingFields(t *testing.T) {
	h := New(&fakeStore{}, testLogger())
	rw := serve(h, http.MethodPost, "/orders", `{"items":[{"itemId":"sku-1","qty":1}]}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
}

func TestUpdateStatus_AnyTransitionAllowed(t *testing.T) {
	store := &fakeStore{}
	h := New(store, testLogger())
	serve(h, http.MethodPost, "/orders", `{"items":[{"itemId":"s","qty":1}],"userEmail":"a@x.com","deliveryAddress":"x"}`)
	id := store.orders[0].ID

	// Forward, then backward: the lifecycle imposes no ordering.
	for _, status := range []string{model.StatusDelivered, model.StatusUnderProcess, model.StatusShipping} {
		rw := serve(h, http.MethodPut, "/orders/"+id+"/status", `{"status":"`+status+`"}`)
		if rw.Code != http.StatusOK {
			t.Fatalf("transition to %q: expected 200, got %d", status, rw.Code)
		}
	}
	if store.orders[0].Status != model.StatusShipping {
		t.Fatalf("expected final status shipping, got %q", store.orders[0].Status)
	}
}

func TestUpdateStatus_InvalidEnum(t *testing.T) {
	store := &fakeStore{}
	h := New(store, testLogger())
	serve(h, http.MethodPost, "/orders", `{"items":[{"itemId":"s","qty":1}],"userEmail":"a@x.com","deliveryAddress":"x"}`)
	id := store.orders[0].ID

	rw := serve(h, http.MethodPut, "/orders/"+id+"/status", `{"status":"lost"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if store.orders[0].Status != model.StatusUnderProcess {
		t.Fatalf("stored status must be unchanged, got %q", store.orders[0].Status)
	}
}

func TestUpdateStatus_UnknownOrder(t *testing.T) {
	h := New(&fakeStore{}, testLogger())
	rw := serve(h, http.MethodPut, "/orders/ghost/status", `{"status":"shipping"}`)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestGatewayStrippedRoutes(t *testing.T) {
	store := &fakeStore{}
	h := New(store, testLogger())

	// The gateway strips /orders, so the same operations arrive rooted at /.
	rw := serve(h, http.MethodPost, "/", `{"items":[{"itemId":"s","qty":1}],"userEmail":"a@x.com","deliveryAddress":"x"}`)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201 on stripped create, got %d", rw.Code)
	}
	rw = serve(h, http.MethodGet, "/", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 on stripped list, got %d", rw.Code)
	}
}

func TestConsistencyPropagation(t *testing.T) {
	store := &fakeStore{}
	h := New(store, testLogger())
	serve(h, http.MethodPost, "/orders", `{"items":[{"itemId":"s","qty":1}],"userEmail":"a@x.com","deliveryAddress":"12 High St"}`)

	// Email change event: address is carried unchanged (old == new).
	rec := orsync.NewReconciler(store, testLogger())
	payload := []byte(`{"userId":"u-1","oldEmail":"a@x.com","newEmail":"b@x.com","oldAddress":"12 High St","newAddress":"12 High St"}`)
	if err := rec.Apply(context.Background(), payload); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	rw := serve(h, http.MethodGet, "/orders", "")
	var got []model.Order
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got[0].UserEmail != "b@x.com" {
		t.Fatalf("expected synced email b@x.com, got %q", got[0].UserEmail)
	}
	if got[0].DeliveryAddress != "12 High St" {
		t.Fatalf("delivery address must be unchanged, got %q", got[0].DeliveryAddress)
	}
}
