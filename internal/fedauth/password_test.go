package fedauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPasswordResolverResolveSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if r.FormValue("grant_type") != "password" {
			t.Fatalf("unexpected grant_type: %q", r.FormValue("grant_type"))
		}
		if r.FormValue("username") != "alice" {
			t.Fatalf("unexpected username: %q", r.FormValue("username"))
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "abc"})
	}))
	defer srv.Close()

	r := &PasswordResolver{Username: "alice", Password: "secret"}
	tok, err := r.Resolve(srv.URL, "MSSQLSvc/db.example:1433")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if string(tok) != string(encodeUTF16LE("abc")) {
		t.Fatal("expected the access token to come back UTF-16LE encoded")
	}
}

func TestPasswordResolverResolveFailsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	r := &PasswordResolver{Username: "alice", Password: "wrong"}
	if _, err := r.Resolve(srv.URL, "spn"); err == nil {
		t.Fatal("expected an error on a non-200 STS response")
	}
}

func TestPasswordResolverResolveFailsOnMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	r := &PasswordResolver{Username: "alice", Password: "secret"}
	if _, err := r.Resolve(srv.URL, "spn"); err == nil {
		t.Fatal("expected an error when the STS response carries no access_token")
	}
}

func TestEncodeUTF16LE(t *testing.T) {
	got := encodeUTF16LE("AB")
	want := []byte{'A', 0, 'B', 0}
	if string(got) != string(want) {
		t.Fatalf("encodeUTF16LE(%q) = %v, want %v", "AB", got, want)
	}
}
