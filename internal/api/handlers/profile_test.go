package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"voyage/internal/core"
	"voyage/internal/storage"
	"voyage/internal/types"
)

// mockProfileStore implements ProfileStore for testing.
type mockProfileStore struct {
	profile *types.Profile
	getErr  error
	updated []types.Profile
}

func (m *mockProfileStore) GetByID(_ context.Context, id string) (*types.Profile, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.profile == nil || m.profile.ID != id {
		return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	p := *m.profile
	return &p, nil
}

func (m *mockProfileStore) Update(_ context.Context, profile *types.Profile) error {
	m.updated = append(m.updated, *profile)
	return nil
}

var _ ProfileStore = (*mockProfileStore)(nil)

func newTestProfileHandler(store *mockProfileStore, photos *mockPhotoIssuer) *ProfileHandler {
	logger := testHandlerLogger()
	return NewProfileHandler(store, photos, core.NewValidator(logger), logger)
}

func existingProfile() *types.Profile {
	return &types.Profile{
		ID:          "acct_1",
		Email:       "ada@example.com",
		DisplayName: "Ada",
		AvatarURL:   "https://photos.example/acct_1/avatar/old.jpg",
	}
}

func TestGetProfile_Success(t *testing.T) {
	store := &mockProfileStore{profile: existingProfile()}
	h := newTestProfileHandler(store, &mockPhotoIssuer{})

	req := makeRequest("GET", "/v1/profile", nil, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Get(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data types.Profile `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Data.Email != "ada@example.com" || resp.Data.DisplayName != "Ada" {
		t.Errorf("unexpected profile in response: %+v", resp.Data)
	}
}

func TestGetProfile_Unauthenticated(t *testing.T) {
	h := newTestProfileHandler(&mockProfileStore{}, &mockPhotoIssuer{})

	req := makeRequest("GET", "/v1/profile", nil, context.Background())
	rr := httptest.NewRecorder()

	h.Get(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestUpdateProfile_DisplayNameOnly(t *testing.T) {
	store := &mockProfileStore{profile: existingProfile()}
	h := newTestProfileHandler(store, &mockPhotoIssuer{})

	name := "Ada Lovelace"
	body := UpdateProfileRequest{DisplayName: &name}
	req := makeRequest("PATCH", "/v1/profile", body, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Update(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(store.updated))
	}
	got := store.updated[0]
	if got.DisplayName != "Ada Lovelace" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "Ada Lovelace")
	}
	// Absent avatar_url must be left unchanged.
	if got.AvatarURL != "https://photos.example/acct_1/avatar/old.jpg" {
		t.Errorf("AvatarURL changed unexpectedly: %q", got.AvatarURL)
	}
}

func TestUpdateProfile_SetsAvatarURL(t *testing.T) {
	store := &mockProfileStore{profile: existingProfile()}
	h := newTestProfileHandler(store, &mockPhotoIssuer{})

	avatar := "https://photos.example/acct_1/avatar/new.png"
	body := UpdateProfileRequest{AvatarURL: &avatar}
	req := makeRequest("PATCH", "/v1/profile", body, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Update(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(store.updated) != 1 {
		t.Fatalf("expected 1 update, got %d", len(store.updated))
	}
	if got := store.updated[0]; got.AvatarURL != avatar || got.DisplayName != "Ada" {
		t.Errorf("unexpected update: %+v", got)
	}
}

func TestUpdateProfile_DisplayNameTooLong(t *testing.T) {
	store := &mockProfileStore{profile: existingProfile()}
	h := newTestProfileHandler(store, &mockPhotoIssuer{})

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'a'
	}
	name := string(long)
	body := UpdateProfileRequest{DisplayName: &name}
	req := makeRequest("PATCH", "/v1/profile", body, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.Update(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if len(store.updated) != 0 {
		t.Errorf("invalid request must not update, got %d updates", len(store.updated))
	}
}

func TestAvatarUploadURL_IssuesTicket(t *testing.T) {
	photos := &mockPhotoIssuer{}
	h := newTestProfileHandler(&mockProfileStore{profile: existingProfile()}, photos)

	var gotScope string
	photos.issueFn = func(_ context.Context, _, scope, _ string, _ int64) (*storage.UploadTicket, error) {
		gotScope = scope
		return &storage.UploadTicket{
			UploadURL: "https://signed.example/put",
			PhotoURL:  "https://photos.example/acct_1/" + scope + "/new.png",
		}, nil
	}

	body := AvatarUploadRequest{ContentType: "image/png", SizeBytes: 52_000}
	req := makeRequest("POST", "/v1/profile/avatar", body, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.AvatarUploadURL(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if photos.issued != 1 {
		t.Errorf("expected 1 ticket issued, got %d", photos.issued)
	}
	if gotScope != "avatar" {
		t.Errorf("upload scope = %q, want %q", gotScope, "avatar")
	}
}

func TestAvatarUploadURL_MissingContentType(t *testing.T) {
	photos := &mockPhotoIssuer{}
	h := newTestProfileHandler(&mockProfileStore{profile: existingProfile()}, photos)

	body := AvatarUploadRequest{SizeBytes: 52_000}
	req := makeRequest("POST", "/v1/profile/avatar", body, contextWithAccount("acct_1"))
	rr := httptest.NewRecorder()

	h.AvatarUploadURL(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if photos.issued != 0 {
		t.Errorf("invalid request must not issue a ticket, got %d", photos.issued)
	}
}
