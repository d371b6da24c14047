package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFailMapsErrorKinds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name     string
		err      error
		status   int
		wantBody bool
	}{
		{"unauthorized", fmt.Errorf("load: %w", ErrUnauthorized), http.StatusUnauthorized, false},
		{"not found", ErrNotFound, http.StatusNotFound, true},
		{"validation", WrapValidationError("recipient hasn't been found", errors.New("boom")), http.StatusBadRequest, true},
		{"other", errors.New("db down"), http.StatusInternalServerError, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			Fail(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			if tc.wantBody {
				assert.NotEmpty(t, w.Body.String())
			} else {
				assert.Empty(t, w.Body.String())
			}
		})
	}
}

func TestValidationErrorHidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(c, WrapValidationError("could not send the message", errors.New("constraint failed")))

	assert.Contains(t, w.Body.String(), "could not send the message")
	assert.NotContains(t, w.Body.String(), "constraint failed")
}
