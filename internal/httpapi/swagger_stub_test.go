//go:build !swagger

package httpapi

import (
	"net/http"
	"testing"
)

func TestSwaggerRoutesAbsentWithoutTag(t *testing.T) {
	r := NewMux(&mockService{})
	for _, p := range []string{"/swagger", "/swagger/index.html", "/swagger/doc.json"} {
		if w := do(t, r, http.MethodGet, p, ""); w.Code != http.StatusNotFound {
			t.Fatalf("%s: want 404 in default builds, got %d", p, w.Code)
		}
	}
	// the rest of the API is unaffected
	if w := do(t, r, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("/healthz: %d", w.Code)
	}
}
