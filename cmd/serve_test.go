package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/solwatch/internal/store"
)

func newMockRouter(t *testing.T) (http.Handler, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newRouter(store.NewWithPool(mock)), mock
}

func TestHealthz(t *testing.T) {
	router, mock := newMockRouter(t)
	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthz_Degraded(t *testing.T) {
	router, mock := newMockRouter(t)
	mock.ExpectExec("SELECT 1").WillReturnError(eris.New("connection refused"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	router, mock := newMockRouter(t)
	mock.ExpectQuery("SELECT").WillReturnRows(pgxmock.NewRows([]string{
		"total", "active", "na", "attachments", "validated", "untrained", "trained",
	}).AddRow(100, 80, 5, 300, 60, 20, 50))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RetrainingNeeded bool `json:"retraining_needed"`
		Stats            struct {
			Total int `json:"total"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 100, body.Stats.Total)
	assert.True(t, body.RetrainingNeeded)
}

func TestSolicitationEndpoint_NotFound(t *testing.T) {
	router, mock := newMockRouter(t)
	mock.ExpectQuery("SELECT .* FROM solicitations").
		WithArgs("W912DY-20-R-0000").
		WillReturnError(pgx.ErrNoRows)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/solicitations/W912DY-20-R-0000", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
