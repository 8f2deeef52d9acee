package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewProbe(2 * time.Second).Check(context.Background(), srv.URL+"/some/addon/manifest.json")
	if !h.IsOnline {
		t.Errorf("expected online, got error %q", h.Error)
	}
}

func TestCheckErrorStatusStillOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewProbe(2 * time.Second).Check(context.Background(), srv.URL)
	if !h.IsOnline {
		t.Errorf("a 404 from the origin still means reachable, got %q", h.Error)
	}
}

func TestCheckOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	h := NewProbe(500 * time.Millisecond).Check(context.Background(), srv.URL)
	if h.IsOnline {
		t.Error("expected offline")
	}
	if h.Error == "" {
		t.Error("offline result should carry an error description")
	}
}

func TestCheckBadURL(t *testing.T) {
	h := NewProbe(time.Second).Check(context.Background(), "not a url")
	if h.IsOnline {
		t.Error("expected offline for unparseable URL")
	}
}

func TestOrigin(t *testing.T) {
	cases := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "https://Addons.Example.COM/v1/manifest.json", want: "https://addons.example.com"},
		{in: "http://host:7000/path?q=1", want: "http://host:7000"},
		{in: "relative/path", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := Origin(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("Origin(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Origin(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Origin(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
