package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func compressRouter(body string) *gin.Engine {
	r := gin.New()
	r.GET("/x", CompressWithConfig(CompressConfig{Quality: 4, MinLength: 64}), func(c *gin.Context) {
		c.String(http.StatusOK, body)
	})
	return r
}

func get(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCompress_LargeBodyIsBrotliEncoded(t *testing.T) {
	body := strings.Repeat(`{"score":80,"passed":true}`, 20)
	w := get(compressRouter(body), map[string]string{"Accept-Encoding": "gzip, br"})

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("expected br encoding, got %q", w.Header().Get("Content-Encoding"))
	}
	plain, err := io.ReadAll(brotli.NewReader(w.Body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(plain) != body {
		t.Fatalf("round trip mismatch: %q", plain)
	}
}

func TestCompress_PassThrough(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{name: "short body", body: "ok", headers: map[string]string{"Accept-Encoding": "br"}},
		{name: "client without br", body: strings.Repeat("a", 200), headers: map[string]string{"Accept-Encoding": "gzip"}},
		{name: "event stream", body: strings.Repeat("a", 200), headers: map[string]string{"Accept-Encoding": "br", "Accept": "text/event-stream"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := get(compressRouter(tc.body), tc.headers)
			if enc := w.Header().Get("Content-Encoding"); enc != "" {
				t.Fatalf("expected no encoding, got %q", enc)
			}
			if w.Body.String() != tc.body {
				t.Fatalf("body altered: %q", w.Body.String())
			}
		})
	}
}
