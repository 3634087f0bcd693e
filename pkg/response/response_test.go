package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/blockvault/blockvault/pkg/errors"
)

func perform(t *testing.T, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	router := gin.New()
	router.GET("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestSuccessEnvelope(t *testing.T) {
	recorder := perform(t, func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"value": 42})
	})

	require.Equal(t, http.StatusOK, recorder.Code)

	var body Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Nil(t, body.Error)
}

func TestErrorEnvelopeFromAppError(t *testing.T) {
	recorder := perform(t, func(c *gin.Context) {
		Error(c, appErrors.ErrNoPendingToken)
	})

	require.Equal(t, http.StatusBadRequest, recorder.Code)

	var body Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	require.Equal(t, appErrors.ErrNoPendingToken.Code, body.Error.Code)
}

func TestErrorEnvelopeHidesInternalDetails(t *testing.T) {
	recorder := perform(t, func(c *gin.Context) {
		Error(c, errors.New("secret database details"))
	})

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	require.NotContains(t, recorder.Body.String(), "secret database details")
}
