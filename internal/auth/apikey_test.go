package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		key    string
		header map[string]string
		query  string
		want   int
	}{
		{"auth disabled", "", nil, "", http.StatusOK},
		{"header", "k", map[string]string{"X-API-Key": "k"}, "", http.StatusOK},
		{"bearer", "k", map[string]string{"Authorization": "Bearer k"}, "", http.StatusOK},
		{"query", "k", nil, "?api_key=k", http.StatusOK},
		{"missing", "k", nil, "", http.StatusUnauthorized},
		{"wrong", "k", map[string]string{"X-API-Key": "x"}, "", http.StatusForbidden},
		{"header wins over query", "k", map[string]string{"X-API-Key": "x"}, "?api_key=k", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/p", APIKeyMiddleware(tt.key), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(http.MethodGet, "/p"+tt.query, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
