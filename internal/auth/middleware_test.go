package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bher20/gmeter/internal/storage"
)

func TestMiddlewareAndRequirePermission(t *testing.T) {
	ctx := context.Background()
	s := newService(t, storage.NewMemory())

	_, viewer, err := s.CreateToken(ctx, "viewer", RoleViewer, nil)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	_, operator, err := s.CreateToken(ctx, "operator", RoleOperator, nil)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	_, expired, err := s.CreateToken(ctx, "old", RoleAdmin, &past)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := s.Middleware(s.RequirePermission("eop", "refresh", ok))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no credentials", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + operator, http.StatusUnauthorized},
		{"garbage token", "Bearer gm_nope.nope", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"viewer", "Bearer " + viewer, http.StatusForbidden},
		{"operator", "Bearer " + operator, http.StatusNoContent},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/eop/refresh", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != c.want {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, c.want, rec.Body.String())
			}
		})
	}
}

func TestMiddlewarePassesAnonymousRequests(t *testing.T) {
	s := newService(t, storage.NewMemory())
	var sawToken bool
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawToken = TokenFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/eop/pole", nil))
	if rec.Code != http.StatusOK || sawToken {
		t.Fatalf("anonymous request should pass through without a token; code=%d token=%v", rec.Code, sawToken)
	}
}
