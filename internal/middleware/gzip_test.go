package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// loginEchoHandler имитирует обработчик входа: читает {"token"} и отвечает JSON.
func loginEchoHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"accepted": req.Token})
}

func gzipBytes(t *testing.T, s string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		compressBody    bool
		acceptGzip      bool
		wantStatus      int
		wantEncoding    string
		wantBodyContain string
	}{
		{
			name:            "compressed json response",
			body:            `{"token":"abc"}`,
			acceptGzip:      true,
			wantStatus:      http.StatusOK,
			wantEncoding:    "gzip",
			wantBodyContain: `"accepted":"abc"`,
		},
		{
			name:            "plain response without accept-encoding",
			body:            `{"token":"abc"}`,
			wantStatus:      http.StatusOK,
			wantBodyContain: `"accepted":"abc"`,
		},
		{
			name:            "compressed request body",
			body:            `{"token":"xyz"}`,
			compressBody:    true,
			acceptGzip:      true,
			wantStatus:      http.StatusOK,
			wantEncoding:    "gzip",
			wantBodyContain: `"accepted":"xyz"`,
		},
		{
			name:       "no content is not encoded",
			body:       `{"token":""}`,
			acceptGzip: true,
			wantStatus: http.StatusNoContent,
		},
		{
			name:            "error response is encoded",
			body:            `not json`,
			acceptGzip:      true,
			wantStatus:      http.StatusBadRequest,
			wantEncoding:    "gzip",
			wantBodyContain: "Bad Request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.compressBody {
				body = gzipBytes(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/session/login", body)
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}

			rec := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(loginEchoHandler)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding = %q, want %q", ce, tt.wantEncoding)
			}

			reader := io.Reader(res.Body)
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer zr.Close()
				reader = zr
			}

			data, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if tt.wantBodyContain == "" {
				if len(data) != 0 {
					t.Fatalf("unexpected body %q", data)
				}
				return
			}
			if !strings.Contains(string(data), tt.wantBodyContain) {
				t.Fatalf("body %q does not contain %q", data, tt.wantBodyContain)
			}
		})
	}
}

func TestGzipMiddleware_CorruptRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader("definitely not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(loginEchoHandler)).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
