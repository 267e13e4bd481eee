package geoip

import (
	"net/http/httptest"
	"testing"
)

func TestNew_EmptyPath(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("expected no error for empty path, got %v", err)
	}
	if country := r.Country("8.8.8.8"); country != "" {
		t.Errorf("expected empty result without a database, got %q", country)
	}
}

func TestNew_InvalidPath(t *testing.T) {
	r, err := New("/nonexistent/path.mmdb")
	if err != nil {
		t.Fatalf("expected no error for missing file (graceful fallback), got %v", err)
	}
	if country := r.Country("8.8.8.8"); country != "" {
		t.Errorf("expected empty result, got %q", country)
	}
}

func TestCountry_InvalidIP(t *testing.T) {
	r, _ := New("")
	for _, ip := range []string{"", "not-an-ip", "10.0.0.1:80"} {
		if country := r.Country(ip); country != "" {
			t.Errorf("Country(%q) = %q, want empty", ip, country)
		}
	}
}

func TestCountryOf_NilResolver(t *testing.T) {
	var r *Resolver
	req := httptest.NewRequest("GET", "/", nil)
	if country := r.CountryOf(req); country != "" {
		t.Errorf("expected empty result for nil resolver, got %q", country)
	}
}

func TestClose_NilDB(t *testing.T) {
	r, _ := New("")
	if err := r.Close(); err != nil {
		t.Errorf("expected no error closing nil resolver, got %v", err)
	}
}
