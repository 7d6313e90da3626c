package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		handle   func(c *gin.Context)
		wantHTTP int
		wantCode int
	}{
		{"success", func(c *gin.Context) { Success(c, gin.H{"sessionId": "s1"}) }, http.StatusOK, CodeSuccess},
		{"error", func(c *gin.Context) { Error(c, http.StatusNotFound, ErrSessionNotFound, "session not found") }, http.StatusNotFound, ErrSessionNotFound},
		{"error with data", func(c *gin.Context) {
			ErrorWithData(c, http.StatusConflict, ErrPayPluginInterrupt, "aborted", gin.H{"plugin": "guard"})
		}, http.StatusConflict, ErrPayPluginInterrupt},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tc.handle(c)

			var body Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.wantHTTP, w.Code)
			assert.Equal(t, tc.wantCode, body.Code)
			assert.Equal(t, tc.wantHTTP != http.StatusOK, c.IsAborted())
		})
	}
}
