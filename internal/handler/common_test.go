package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/casino-floor/internal/repository"
)

func TestWriteError(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("open: %w", repository.ErrSeatTaken), http.StatusConflict, "seat_taken"},
		{repository.ErrPlayerAlreadyRated, http.StatusConflict, "player_already_rated"},
		{repository.ErrSessionNotFound, http.StatusConflict, "session_not_found"},
		{repository.ErrAlreadyClosed, http.StatusConflict, "already_closed"},
		{repository.ErrVisitClosed, http.StatusConflict, "visit_closed"},
		{repository.ErrOpenVisitElsewhere, http.StatusConflict, "open_visit_elsewhere"},
		{repository.Validation("seat_number must be >= 1"), http.StatusBadRequest, "validation_failed"},
		{repository.ErrTableNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: timeout", repository.ErrStoreUnavailable), http.StatusServiceUnavailable, "store_unavailable"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "store_unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		assert.NoError(t, writeError(c, log, tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Contains(t, rec.Body.String(), `"error":"`+tc.code+`"`, tc.err.Error())
	}
	assert.Len(t, hook.AllEntries(), 1, "only the unmapped error is logged")
}

func TestListNeverNull(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	assert.NoError(t, list[string](c, nil))
	assert.JSONEq(t, `{"items":[],"count":0}`, rec.Body.String())
}
