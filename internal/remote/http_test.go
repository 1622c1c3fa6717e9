package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/listling/listling/internal/models"
)

var now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testClient(srv *httptest.Server) *Client {
	c := New(srv.URL, "key-123", "dev-abc")
	c.HTTP = srv.Client()
	return c
}

func sampleList() models.List {
	return models.List{
		ID:        "ls-1",
		Name:      "Groceries",
		OwnerID:   "u1",
		CreatedAt: now,
		UpdatedAt: now,
		Members: map[string]models.Member{
			"u1": {
				PrincipalID: "u1",
				Role:        models.RoleOwner,
				JoinedAt:    now,
				Permissions: models.OwnerPermissions(),
			},
		},
	}
}

func TestCreateSendsClientID(t *testing.T) {
	var got models.List
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/lists" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key-123" {
			t.Errorf("auth header = %q", auth)
		}
		if dev := r.Header.Get("X-Device-ID"); dev != "dev-abc" {
			t.Errorf("device header = %q", dev)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := testClient(srv)
	if err := c.Create(context.Background(), sampleList()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ID != "ls-1" {
		t.Errorf("service received id %q, want the client-generated one", got.ID)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("timestamp altered in transit: %v", got.UpdatedAt)
	}
}

func TestGetRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/lists/ls-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(sampleList())
	}))
	defer srv.Close()

	got, err := testClient(srv).Get(context.Background(), "ls-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Groceries" || len(got.Members) != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestListVisibleFiltersByMember(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if member := r.URL.Query().Get("member"); member != "u1" {
			t.Errorf("member param = %q", member)
		}
		json.NewEncoder(w).Encode([]models.List{sampleList()})
	}))
	defer srv.Close()

	lists, err := testClient(srv).ListVisible(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(lists) != 1 || lists[0].ID != "ls-1" {
		t.Errorf("lists = %+v", lists)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"forbidden", http.StatusForbidden, `{"code":"forbidden","message":"read only"}`, ErrPermissionDenied},
		{"unauthorized", http.StatusUnauthorized, ``, ErrPermissionDenied},
		{"not found", http.StatusNotFound, `{"code":"not_found"}`, ErrNotFound},
		{"conflict", http.StatusConflict, ``, ErrAlreadyMember},
		{"already member code", http.StatusBadRequest, `{"code":"already_member","message":"dup"}`, ErrAlreadyMember},
		{"bad gateway", http.StatusBadGateway, ``, ErrUnavailable},
		{"unavailable", http.StatusServiceUnavailable, ``, ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := testClient(srv).Delete(context.Background(), "ls-1")
			if !errors.Is(err, tc.want) {
				t.Errorf("status %d: err = %v, want %v", tc.status, err, tc.want)
			}
		})
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := testClient(srv).Get(context.Background(), "ls-1")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestLookupUserByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/users/lookup" {
			t.Errorf("path = %s", r.URL.Path)
		}
		switch r.URL.Query().Get("email") {
		case "bob@example.com":
			json.NewEncoder(w).Encode(User{ID: "u2", Email: "bob@example.com", DisplayName: "Bob"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv)
	u, err := c.LookupUserByEmail(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if u.ID != "u2" {
		t.Errorf("user = %+v", u)
	}

	_, err = c.LookupUserByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("missing email err = %v, want ErrUserNotFound", err)
	}
}

func TestAddMemberPostsToMembersPath(t *testing.T) {
	var got models.Member
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/lists/ls-1/members" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	member := models.Member{
		PrincipalID: "u2",
		Email:       "bob@example.com",
		Role:        models.RoleMember,
		JoinedAt:    now,
		Permissions: models.DefaultMemberPermissions(),
	}
	if err := testClient(srv).AddMember(context.Background(), "ls-1", member); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if got.PrincipalID != "u2" || got.Role != models.RoleMember {
		t.Errorf("member sent = %+v", got)
	}
}

func TestWatchURLScheme(t *testing.T) {
	c := &Client{BaseURL: "https://lists.example.com"}
	u, err := c.watchURL("u1")
	if err != nil {
		t.Fatalf("watch url: %v", err)
	}
	want := "wss://lists.example.com/v1/lists/watch?member=u1"
	if u != want {
		t.Errorf("url = %q, want %q", u, want)
	}

	c.BaseURL = "ftp://lists.example.com"
	if _, err := c.watchURL("u1"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
