package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amirphl/orochi-attribution/app/dto"
	businessflow "github.com/amirphl/orochi-attribution/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssueFlow struct {
	got *dto.GenerateClickLogRequest
	err error
}

func (f *fakeIssueFlow) IssueLink(_ context.Context, req *dto.GenerateClickLogRequest) (*dto.GenerateClickLogResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.GenerateClickLogResponse{ClickLog: dto.ClickLogDTO{UID: "abc123", CustomerRef: req.CustomerRef, TrackedURL: "https://t.example.com/r/abc123"}}, nil
}

type fakeRecordFlow struct {
	target string
	err    error
}

func (f *fakeRecordFlow) RecordClick(context.Context, string) (string, error) {
	return f.target, f.err
}

type fakeManualFlow struct {
	got *dto.RegisterSaleRequest
}

func (f *fakeManualFlow) RegisterManualSale(_ context.Context, req *dto.RegisterSaleRequest) (*dto.RegisterSaleResponse, error) {
	f.got = req
	return &dto.RegisterSaleResponse{ClickLog: dto.ClickLogDTO{CustomerRef: req.CustomerRef, Converted: true}}, nil
}

type fakeCorrelationFlow struct {
	got *dto.CorrelateConversionsRequest
	err error
}

func (f *fakeCorrelationFlow) CorrelateConversions(_ context.Context, req *dto.CorrelateConversionsRequest) (*dto.CorrelateConversionsResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.CorrelateConversionsResponse{SellerID: req.SellerID, DryRun: req.DryRun, ClicksCorrelated: 2}, nil
}

func (f *fakeCorrelationFlow) ListRuns(context.Context, string, int) (*dto.ListCorrelationRunsResponse, error) {
	return &dto.ListCorrelationRunsResponse{Runs: []dto.CorrelationRunDTO{}}, nil
}

type fakeStatsFlow struct {
	gotRange *dto.StatsRangeRequest
	err      error
}

func (f *fakeStatsFlow) ConversionStats(_ context.Context, req *dto.StatsRangeRequest) (*dto.ConversionStatsResponse, error) {
	f.gotRange = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.ConversionStatsResponse{Stats: dto.ConversionStats{TotalLinks: 3, TotalRevenue: decimal.NewFromInt(10)}}, nil
}

func (f *fakeStatsFlow) DailySeries(context.Context, *dto.DailySeriesRequest) (*dto.DailySeriesResponse, error) {
	return &dto.DailySeriesResponse{ChartData: []dto.DailySeriesPoint{{Date: "2024-06-01", DateLabel: "Jun 01"}}}, f.err
}

func (f *fakeStatsFlow) RecentConversions(context.Context, int) (*dto.RecentConversionsResponse, error) {
	return &dto.RecentConversionsResponse{ClickLogs: []dto.ClickLogDTO{}}, nil
}

func (f *fakeStatsFlow) TopProducts(_ context.Context, req *dto.StatsRangeRequest) (*dto.TopProductsResponse, error) {
	f.gotRange = req
	return &dto.TopProductsResponse{Products: []dto.TopProduct{}}, nil
}

func (f *fakeStatsFlow) TopRegions(_ context.Context, req *dto.StatsRangeRequest) (*dto.TopRegionsResponse, error) {
	f.gotRange = req
	return &dto.TopRegionsResponse{Regions: []dto.TopRegion{}}, nil
}

func (f *fakeStatsFlow) ExportConversions(_ context.Context, req *dto.StatsRangeRequest) (string, []byte, error) {
	f.gotRange = req
	return "conversions_2024-06-01_2024-06-08.xlsx", []byte("PK"), nil
}

func nullLogger() *logrus.Entry {
	l, _ := test.NewNullLogger()
	return logrus.NewEntry(l)
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestClickLogHandler_Generate(t *testing.T) {
	flow := &fakeIssueFlow{}
	h := NewClickLogHandler(flow, &fakeStatsFlow{}, nullLogger())
	app := fiber.New()
	app.Post("/generate", h.Generate)
	app.Get("/daily", h.Daily)

	t.Run("Created", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPost, "/generate",
			`{"customerRef":"cust-1","productRef":"Audifonos","originalUrl":"https://articulo.mercadolibre.com.mx/MLM-1"}`)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "abc123", data["clickLog"].(map[string]any)["uid"])
		assert.Equal(t, "cust-1", flow.got.CustomerRef)
	})

	t.Run("MissingField", func(t *testing.T) {
		flow.got = nil
		resp, body := doRequest(t, app, http.MethodPost, "/generate", `{"productRef":"x","originalUrl":"https://a.com"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, businessflow.CodeValidationError, errorCode(body))
		assert.Nil(t, flow.got)
	})

	t.Run("FlowValidation", func(t *testing.T) {
		flow.err = businessflow.NewBusinessError(businessflow.CodeValidationError, "bad url", businessflow.ErrInvalidOriginalURL)
		defer func() { flow.err = nil }()
		resp, body := doRequest(t, app, http.MethodPost, "/generate", `{"customerRef":"c","productRef":"x","originalUrl":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "bad url", body["message"])
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodPost, "/generate", `{"customerRef":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_REQUEST", errorCode(body))
	})

	t.Run("Daily", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodGet, "/daily?startDate=2024-06-01", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		points := body["data"].(map[string]any)["chartData"].([]any)
		assert.Len(t, points, 1)
	})
}

func TestRedirectHandler_Visit(t *testing.T) {
	flow := &fakeRecordFlow{target: "https://articulo.mercadolibre.com.mx/MLM-1"}
	h := NewRedirectHandler(flow, "https://www.mercadolibre.com.mx", nullLogger())
	app := fiber.New()
	app.Get("/r/:uid", h.Visit)

	resp, _ := doRequest(t, app, http.MethodGet, "/r/abc123", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://articulo.mercadolibre.com.mx/MLM-1", resp.Header.Get("Location"))

	flow.err = businessflow.ErrClickLogNotFound
	resp, _ = doRequest(t, app, http.MethodGet, "/r/missing", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://www.mercadolibre.com.mx", resp.Header.Get("Location"))
}

func TestConversationHandler_RegisterSale(t *testing.T) {
	flow := &fakeManualFlow{}
	h := NewConversationHandler(flow, nullLogger())
	app := fiber.New()
	app.Post("/conversations/:customerRef/register-sale", h.RegisterSale)

	resp, body := doRequest(t, app, http.MethodPost, "/conversations/cust-9/register-sale",
		`{"productName":"Silla Gamer","totalAmount":"450.50","notes":"transfer"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	require.NotNil(t, flow.got)
	assert.Equal(t, "cust-9", flow.got.CustomerRef)
	assert.True(t, decimal.RequireFromString("450.50").Equal(flow.got.TotalAmount))

	flow.got = nil
	resp, _ = doRequest(t, app, http.MethodPost, "/conversations/cust-9/register-sale", `{"totalAmount":10}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Nil(t, flow.got)
}

func TestAnalyticsHandler_CorrelateConversions(t *testing.T) {
	flow := &fakeCorrelationFlow{}
	h := NewAnalyticsHandler(flow, &fakeStatsFlow{}, nullLogger())
	app := fiber.New()
	app.Post("/correlate", h.CorrelateConversions)
	app.Get("/runs", h.ListCorrelationRuns)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Success", nil, http.StatusOK, ""},
		{"AlreadyRunning", businessflow.NewBusinessError(businessflow.CodeCorrelationAlreadyRunning, "busy", businessflow.ErrCorrelationAlreadyRunning), http.StatusConflict, businessflow.CodeCorrelationAlreadyRunning},
		{"MarketplaceDown", businessflow.NewBusinessError(businessflow.CodeMarketplaceFetchFailed, "feed", businessflow.ErrMarketplaceFetchFailed), http.StatusBadGateway, businessflow.CodeMarketplaceFetchFailed},
		{"Unexpected", businessflow.NewBusinessError("CORRELATION_WRITE_FAILED", "write", nil), http.StatusInternalServerError, "CORRELATION_FAILED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			flow.err = tc.err
			resp, body := doRequest(t, app, http.MethodPost, "/correlate", `{"sellerId":"seller-1","dryRun":true,"orderLimit":20}`)
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.code != "" {
				assert.Equal(t, tc.code, errorCode(body))
			}
			assert.True(t, flow.got.DryRun)
			assert.Equal(t, 20, flow.got.OrderLimit)
		})
	}

	t.Run("SellerRequired", func(t *testing.T) {
		flow.got = nil
		resp, _ := doRequest(t, app, http.MethodPost, "/correlate", `{"dryRun":true}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Nil(t, flow.got)
	})

	t.Run("ListRunsBadLimit", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/runs?limit=many", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAnalyticsHandler_Dashboard(t *testing.T) {
	stats := &fakeStatsFlow{}
	h := NewAnalyticsHandler(&fakeCorrelationFlow{}, stats, nullLogger())
	app := fiber.New()
	app.Get("/conversions", h.ConversionStats)
	app.Get("/conversions/recent", h.RecentConversions)
	app.Get("/conversions/export", h.ExportConversions)
	app.Get("/top-products", h.TopProducts)
	app.Get("/top-region", h.TopRegions)

	t.Run("StatsPassesRange", func(t *testing.T) {
		resp, body := doRequest(t, app, http.MethodGet, "/conversions?dateFrom=2024-06-01&dateTo=2024-06-07&excludeOrphans=true", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "2024-06-01", stats.gotRange.DateFrom)
		assert.Equal(t, "2024-06-07", stats.gotRange.DateTo)
		assert.True(t, stats.gotRange.ExcludeOrphans)
		s := body["data"].(map[string]any)["stats"].(map[string]any)
		assert.EqualValues(t, 3, s["totalLinks"])
	})

	t.Run("StatsBadBool", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/conversions?excludeOrphans=maybe", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("StatsFlowValidation", func(t *testing.T) {
		stats.err = businessflow.NewBusinessError(businessflow.CodeValidationError, "start date cannot be after end date", businessflow.ErrStartDateAfterEndDate)
		defer func() { stats.err = nil }()
		resp, _ := doRequest(t, app, http.MethodGet, "/conversions?dateFrom=2024-06-07&dateTo=2024-06-01", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("TopProductsLimitBounds", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/top-products?limit=500", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = doRequest(t, app, http.MethodGet, "/top-products?limit=5", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 5, stats.gotRange.Limit)
	})

	t.Run("TopRegions", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/top-region", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Recent", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/conversions/recent?limit=5", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Export", func(t *testing.T) {
		resp, _ := doRequest(t, app, http.MethodGet, "/conversions/export?dateFrom=2024-06-01", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "conversions_2024-06-01_2024-06-08.xlsx")
	})
}
