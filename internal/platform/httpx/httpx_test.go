package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: quote 7", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: no lines", shared.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: frozen", shared.ErrStateConflict), http.StatusConflict},
		{fmt.Errorf("%w: number taken", shared.ErrConcurrency), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "%v", tc.err)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("dsn=postgres://secret"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)
	assert.Equal(t, "internal", body.Type)
}

func TestRespondErrorConflict(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("%w: lines are frozen", shared.ErrStateConflict))
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "state_conflict", body.Type)
	assert.Contains(t, body.Detail, "frozen")
}
