package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCORSAllowsLocalDevOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://study.example.com/, ")

	origins := []string{
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"https://study.example.com",
	}

	for _, origin := range origins {
		origin := origin
		t.Run(origin, func(t *testing.T) {
			r := gin.New()
			r.Use(CORS())
			r.OPTIONS("/api/packs", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodOptions, "/api/packs", nil)
			req.Header.Set("Origin", origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code)
			assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestAllowedOriginsSkipsBlanks(t *testing.T) {
	got := allowedOrigins(" , https://a.example.com/ ,")
	assert.Equal(t, len(defaultOrigins)+1, len(got))
	assert.Equal(t, "https://a.example.com", got[len(got)-1])
}
