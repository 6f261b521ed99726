package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/economy-energy/crm-aggregator/internal/aggregate"
	"github.com/economy-energy/crm-aggregator/internal/config"
	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// emptyCRM is a bitrix.Client that matches nothing.
type emptyCRM struct{}

func (emptyCRM) List(context.Context, string, bitrix.ListRequest) (*bitrix.ListPage, error) {
	return &bitrix.ListPage{}, nil
}

func (emptyCRM) Batch(context.Context, map[string]string) (map[string]json.RawMessage, error) {
	return nil, nil
}

func testRouter() http.Handler {
	agg := aggregate.New(emptyCRM{}, config.AggregateConfig{
		RunTimeoutSecs:  5,
		LeadEmailFields: []string{"UF_CRM_1717008267006"},
		DealEmailField:  "UF_CRM_6657792586A0F",
		UsinaEmailField: "UF_CRM_1716235306165",
		UsinaCategoryID: "9",
	})
	return newRouter(agg)
}

func TestServe_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_GetData(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/get_data", strings.NewReader(`{"email":"a@b.com"}`))
	testRouter().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data       []any          `json:"data"`
		Counts     map[string]int `json:"counts"`
		Total      int            `json:"total"`
		RunID      string         `json:"run_id"`
		StatusBody int            `json:"statusbody"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Total)
	assert.Equal(t, 200, body.StatusBody)
	assert.NotEmpty(t, body.RunID)
	assert.Contains(t, body.Counts, "LEAD")
	assert.Contains(t, body.Counts, "DEAL")
	assert.Contains(t, body.Counts, "DEALS_USINA")
}

func TestServe_GetData_InvalidBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/get_data", strings.NewReader(`{not json`))
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestServe_GetData_InvalidEmail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/get_data", strings.NewReader(`{"email":"not-an-email"}`))
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid email")
}

func TestServe_CORSHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/get_data", strings.NewReader(`{"email":"a@b.com"}`))
	req.Header.Set("Origin", "https://dashboard.example.com")
	testRouter().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
