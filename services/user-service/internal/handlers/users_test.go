package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rifat-hasan/usergate/services/user-service/internal/events"
	"github.com/rifat-hasan/usergate/services/user-service/internal/storage"
)

type fakeStore struct {
	users map[string]storage.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]storage.User{}}
}

func (s *fakeStore) Create(_ context.Context, id, email, address string, phone *string) (storage.User, error) {
	u := storage.User{
		ID:        id,
		Email:     email,
		Address:   address,
		Phone:     phone,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.users[id] = u
	return u, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (storage.User, error) {
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) UpdateEmail(_ context.Context, id, email string) (storage.User, string, error) {
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, "", storage.ErrNotFound
	}
	old := u.Email
	u.Email = email
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return u, old, nil
}

func (s *fakeStore) UpdateAddress(_ context.Context, id, address string) (storage.User, string, error) {
	u, ok := s.users[id]
	if !ok {
		return storage.User{}, "", storage.ErrNotFound
	}
	old := u.Address
	u.Address = address
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return u, old, nil
}

type capturePublisher struct {
	published []events.ChangeEvent
	fail      bool
}

func (p *capturePublisher) Publish(_ context.Context, ev events.ChangeEvent) error {
	if p.fail {
		return errors.New("broker unreachable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

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

func TestCreate_MissingFields(t *testing.T) {
	h := New(newFakeStore(), &capturePublisher{}, testLogger(), VariantV1)

	rw := serve(h, http.MethodPost, "/", `{"id":"u-1","email":"a@x.com"}`)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rw.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Fatalf("expected JSON error body, got %q", rw.Body.String())
	}
}

func TestCreate_PhoneByVariant(t *testing.T) {
	payload := `{"id":"u-1","email":"a@x.com","address":"12 High St","phone":"555-0101"}`

	v1 := New(newFakeStore(), &capturePublisher{}, testLogger(), VariantV1)
	rw := serve(v1, http.MethodPost, "/", payload)
	if rw.Code != http.StatusCreated {
		t.Fatalf("v1 create: expected 201, got %d", rw.Code)
	}
	if strings.Contains(rw.Body.String(), "phone") {
		t.Fatalf("v1 should drop phone, got %s", rw.Body.String())
	}

	v2 := New(newFakeStore(), &capturePublisher{}, testLogger(), VariantV2)
	rw = serve(v2, http.MethodPost, "/", payload)
	if rw.Code != http.StatusCreated {
		t.Fatalf("v2 create: expected 201, got %d", rw.Code)
	}
	var resp struct {
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Phone != "555-0101" {
		t.Fatalf("v2 should keep phone, got %q", resp.Phone)
	}
}

func TestUpdateEmail_EmitsChangeEvent(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	h := New(store, pub, testLogger(), VariantV1)

	serve(h, http.MethodPost, "/", `{"id":"u-1","email":"a@x.com","address":"12 High St"}`)

	rw := serve(h, http.MethodPut, "/u-1/email", `{"email":"b@x.com"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.published))
	}
	ev := pub.published[0]
	if ev.OldEmail != "a@x.com" || ev.NewEmail != "b@x.com" {
		t.Fatalf("unexpected email pair %q -> %q", ev.OldEmail, ev.NewEmail)
	}
	if ev.OldAddress != "12 High St" || ev.NewAddress != "12 High St" {
		t.Fatalf("address should be unchanged in an email event, got %q -> %q", ev.OldAddress, ev.NewAddress)
	}
}

func TestUpdateEmail_Idempotent(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	h := New(store, pub, testLogger(), VariantV1)

	serve(h, http.MethodPost, "/", `{"id":"u-1","email":"a@x.com","address":"12 High St"}`)
	serve(h, http.MethodPut, "/u-1/email", `{"email":"b@x.com"}`)

	rw := serve(h, http.MethodPut, "/u-1/email", `{"email":"b@x.com"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("second identical update: expected 200, got %d", rw.Code)
	}
	if len(pub.published) != 2 {
		t.Fatalf("expected 2 events, got %d", len(pub.published))
	}
	second := pub.published[1]
	if second.OldEmail != "b@x.com" || second.NewEmail != "b@x.com" {
		t.Fatalf("repeat update should emit old == new, got %q -> %q", second.OldEmail, second.NewEmail)
	}
}

func TestUpdateAddress_EmitsChangeEvent(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	h := New(store, pub, testLogger(), VariantV1)

	serve(h, http.MethodPost, "/", `{"id":"u-1","email":"a@x.com","address":"12 High St"}`)

	rw := serve(h, http.MethodPut, "/u-1/address", `{"address":"99 Low Rd"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	ev := pub.published[0]
	if ev.OldAddress != "12 High St" || ev.NewAddress != "99 Low Rd" {
		t.Fatalf("unexpected address pair %q -> %q", ev.OldAddress, ev.NewAddress)
	}
	if ev.OldEmail != "a@x.com" || ev.NewEmail != "a@x.com" {
		t.Fatalf("email should be unchanged in an address event, got %q -> %q", ev.OldEmail, ev.NewEmail)
	}
}

func TestUpdateEmail_UnknownUser(t *testing.T) {
	h := New(newFakeStore(), &capturePublisher{}, testLogger(), VariantV1)

	rw := serve(h, http.MethodPut, "/ghost/email", `{"email":"b@x.com"}`)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestUpdateEmail_PublishFailureDoesNotFailRequest(t *testing.T) {
	store := newFakeStore()
	h := New(store, &capturePublisher{fail: true}, testLogger(), VariantV1)

	serve(h, http.MethodPost, "/", `{"id":"u-1","email":"a@x.com","address":"12 High St"}`)

	rw := serve(h, http.MethodPut, "/u-1/email", `{"email":"b@x.com"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("publish failure must not fail the mutation, got %d", rw.Code)
	}
	u, _ := store.Get(context.Background(), "u-1")
	if u.Email != "b@x.com" {
		t.Fatalf("mutation should stay committed, got %q", u.Email)
	}
}

func TestDegradedMode_NoopPublisher(t *testing.T) {
	h := New(newFakeStore(), events.NoopPublisher{}, testLogger(), VariantV1)

	serve(h, http.MethodPost, "/", `{"id":"u-1","email":"a@x.com","address":"12 High St"}`)
	rw := serve(h, http.MethodPut, "/u-1/email", `{"email":"b@x.com"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("degraded mode should still serve mutations, got %d", rw.Code)
	}
}
