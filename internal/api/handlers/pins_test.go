package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"voyage/internal/core"
	"voyage/internal/types"
)

// mockPinStore implements PinStore for testing.
type mockPinStore struct {
	createFn       func(ctx context.Context, pin *types.PinnedLocation) error
	countByOwnerFn func(ctx context.Context, ownerID string) (int, error)

	created []*types.PinnedLocation
}

func (m *mockPinStore) Create(ctx context.Context, pin *types.PinnedLocation) error {
	m.created = append(m.created, pin)
	if m.createFn != nil {
		return m.createFn(ctx, pin)
	}
	return nil
}

func (m *mockPinStore) ListByOwner(_ context.Context, ownerID string) ([]types.PinnedLocation, error) {
	return []types.PinnedLocation{{ID: "pin_1", OwnerID: ownerID, Label: "Alfama"}}, nil
}

func (m *mockPinStore) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	if m.countByOwnerFn != nil {
		return m.countByOwnerFn(ctx, ownerID)
	}
	return 0, nil
}

func (m *mockPinStore) Delete(_ context.Context, _, _ string) error { return nil }

var _ PinStore = (*mockPinStore)(nil)

func newTestPinHandler(pins *mockPinStore, voyages *mockVoyageStore, ent EntitlementSource, denials *captureDenials) *PinHandler {
	logger := testHandlerLogger()
	return NewPinHandler(pins, voyages, ent, denials, core.NewValidator(logger), logger)
}

func validPinRequest() CreatePinRequest {
	return CreatePinRequest{
		VoyageID:  "voy_1",
		Label:     "Alfama viewpoint",
		Latitude:  38.7139,
		Longitude: -9.1334,
	}
}

func TestPinCreate_Success(t *testing.T) {
	pins := &mockPinStore{}
	h := newTestPinHandler(pins, &mockVoyageStore{}, freeEntitlement(), &captureDenials{})

	req := makeRequest("POST", "/v1/pins", validPinRequest(), contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(pins.created) != 1 {
		t.Fatalf("expected one pin created, got %d", len(pins.created))
	}
	if pins.created[0].OwnerID != "acct_1" {
		t.Errorf("expected owner acct_1, got %q", pins.created[0].OwnerID)
	}
}

func TestPinCreate_FreeTierLimitReached(t *testing.T) {
	pins := &mockPinStore{
		countByOwnerFn: func(_ context.Context, _ string) (int, error) { return 2, nil },
	}
	denials := &captureDenials{}
	h := newTestPinHandler(pins, &mockVoyageStore{}, freeEntitlement(), denials)

	req := makeRequest("POST", "/v1/pins", validPinRequest(), contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if code := errorCode(t, rr); code != string(types.ErrCodeLimitPins) {
		t.Errorf("expected limit_pins_exceeded, got %q", code)
	}
	if len(pins.created) != 0 {
		t.Error("denied create must not persist anything")
	}
	if len(denials.kinds) != 1 || denials.kinds[0] != types.ResourcePins {
		t.Errorf("expected one pins denial recorded, got %v", denials.kinds)
	}
}

func TestPinCreate_PremiumUnlimited(t *testing.T) {
	pins := &mockPinStore{
		countByOwnerFn: func(_ context.Context, _ string) (int, error) { return 5000, nil },
	}
	h := newTestPinHandler(pins, &mockVoyageStore{}, premiumEntitlement(), &captureDenials{})

	req := makeRequest("POST", "/v1/pins", validPinRequest(), contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("premium pins are unlimited; expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPinCreate_VoyageNotOwned(t *testing.T) {
	voyages := &mockVoyageStore{
		getByIDFn: func(_ context.Context, _, _ string) (*types.Voyage, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundVoyage, "voyage not found", nil)
		},
	}
	h := newTestPinHandler(&mockPinStore{}, voyages, freeEntitlement(), &captureDenials{})

	req := makeRequest("POST", "/v1/pins", validPinRequest(), contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestPinCreate_InvalidCoordinates(t *testing.T) {
	h := newTestPinHandler(&mockPinStore{}, &mockVoyageStore{}, freeEntitlement(), &captureDenials{})

	body := validPinRequest()
	body.Latitude = 91.0
	req := makeRequest("POST", "/v1/pins", body, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Create(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
	}
}
