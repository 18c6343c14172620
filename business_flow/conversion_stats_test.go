package businessflow

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var (
	statsFrom = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	statsTo   = time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
)

func ledgerRow(id uint, customer string, createdAt time.Time) *models.ClickLog {
	return &models.ClickLog{ID: id, UID: "uid-" + customer, CustomerRef: customer, ProductName: "Producto " + customer, CreatedAt: createdAt}
}

func clicked(row *models.ClickLog, at time.Time) *models.ClickLog {
	row.ClickedAt = &at
	return row
}

func converted(row *models.ClickLog, method models.CorrelationMethod, amount string, at time.Time) *models.ClickLog {
	row.ApplyAttribution(models.Attribution{
		Data:        models.ConversionData{TotalAmount: decimal.RequireFromString(amount)},
		Method:      method,
		ConvertedAt: at,
	})
	return row
}

func TestComputeConversionStats_EmptyLedger(t *testing.T) {
	stats := ComputeConversionStats(nil, statsFrom, statsTo, false, 5)

	assert.Zero(t, stats.TotalLinks)
	assert.Zero(t, stats.ClickRate)
	assert.Zero(t, stats.ConversionRate)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.True(t, stats.RevenuePerClick.IsZero())
	assert.Len(t, stats.MethodBreakdown, len(models.AllCorrelationMethods))
	for _, m := range models.AllCorrelationMethods {
		assert.Zero(t, stats.MethodBreakdown[m.String()])
	}
	assert.NotNil(t, stats.TopCustomers)
	assert.Empty(t, stats.TopCustomers)
}

func TestComputeConversionStats_Rates(t *testing.T) {
	day := statsFrom.Add(36 * time.Hour)
	rows := []*models.ClickLog{
		converted(clicked(ledgerRow(1, "ana", day), day.Add(time.Hour)), models.CorrelationMethodMLItemMatch, "100.00", day.Add(2*time.Hour)),
		clicked(ledgerRow(2, "ana", day), day.Add(time.Hour)),
		converted(ledgerRow(3, "luis", day), models.CorrelationMethodTime, "50.005", day.Add(time.Hour)),
		ledgerRow(4, "sofia", day),
		// outside the range
		converted(ledgerRow(5, "ana", statsTo), models.CorrelationMethodManual, "999.00", statsTo),
	}

	stats := ComputeConversionStats(rows, statsFrom, statsTo, false, 5)

	assert.Equal(t, 4, stats.TotalLinks)
	assert.Equal(t, 2, stats.ClickedLinks)
	assert.Equal(t, 2, stats.Conversions)
	assert.InDelta(t, 0.5, stats.ClickRate, 1e-9)
	assert.InDelta(t, 0.5, stats.ConversionRate, 1e-9)
	assert.True(t, decimal.RequireFromString("150.005").Equal(stats.TotalRevenue))
	assert.Equal(t, "75.00", stats.RevenuePerClick.StringFixed(2))
	assert.Equal(t, 1, stats.ConfidenceBreakdown.High)
	assert.Equal(t, 1, stats.ConfidenceBreakdown.Low)
	assert.Equal(t, 1, stats.MethodBreakdown["ml_item_match"])
	assert.Equal(t, 1, stats.MethodBreakdown["time"])

	require.Len(t, stats.TopCustomers, 2)
	assert.Equal(t, "ana", stats.TopCustomers[0].CustomerRef)
	assert.Equal(t, "luis", stats.TopCustomers[1].CustomerRef)

	assert.LessOrEqual(t, stats.ClickRate, 1.0)
	assert.GreaterOrEqual(t, stats.ConversionRate, 0.0)
}

func TestComputeConversionStats_Orphans(t *testing.T) {
	day := statsFrom.Add(time.Hour)
	orphan := converted(ledgerRow(2, "buyer:X", day), models.CorrelationMethodOrphan, "80.00", day)
	orphan.IsOrphan = true
	rows := []*models.ClickLog{
		converted(ledgerRow(1, "ana", day), models.CorrelationMethodEnhanced, "20.00", day),
		orphan,
	}

	included := ComputeConversionStats(rows, statsFrom, statsTo, false, 5)
	assert.Equal(t, 2, included.TotalLinks)
	assert.Equal(t, 2, included.Conversions)
	assert.Equal(t, 1, included.OrphanConversions)
	assert.True(t, decimal.RequireFromString("100").Equal(included.TotalRevenue))
	require.Len(t, included.TopCustomers, 1)

	excluded := ComputeConversionStats(rows, statsFrom, statsTo, true, 5)
	assert.Equal(t, 1, excluded.TotalLinks)
	assert.Equal(t, 1, excluded.Conversions)
	assert.Equal(t, 1, excluded.OrphanConversions)
	assert.Equal(t, 0, excluded.MethodBreakdown["orphan"])
	assert.True(t, decimal.RequireFromString("20").Equal(excluded.TotalRevenue))
}

func TestComputeConversionStats_TopCustomerOrdering(t *testing.T) {
	day := statsFrom.Add(time.Hour)
	rows := []*models.ClickLog{
		converted(ledgerRow(1, "carla", day), models.CorrelationMethodManual, "10", day),
		converted(ledgerRow(2, "bruno", day), models.CorrelationMethodManual, "5", day),
		converted(ledgerRow(3, "bruno", day), models.CorrelationMethodManual, "5", day),
		converted(ledgerRow(4, "alba", day), models.CorrelationMethodManual, "10", day),
		converted(ledgerRow(5, "dario", day), models.CorrelationMethodManual, "1", day),
	}

	stats := ComputeConversionStats(rows, statsFrom, statsTo, false, 3)
	require.Len(t, stats.TopCustomers, 3)
	assert.Equal(t, "bruno", stats.TopCustomers[0].CustomerRef)
	assert.Equal(t, "alba", stats.TopCustomers[1].CustomerRef)
	assert.Equal(t, "carla", stats.TopCustomers[2].CustomerRef)
}

func TestComputeDailySeries(t *testing.T) {
	to := statsFrom.AddDate(0, 0, 4)
	created := statsFrom.Add(26 * time.Hour)
	rows := []*models.ClickLog{
		converted(clicked(ledgerRow(1, "ana", created), created.Add(24*time.Hour)), models.CorrelationMethodTime, "10", created.Add(25*time.Hour)),
		clicked(ledgerRow(2, "luis", statsFrom.Add(-time.Hour)), statsFrom.Add(time.Hour)),
	}

	points := ComputeDailySeries(rows, statsFrom, to)
	require.Len(t, points, 4)
	assert.Equal(t, "2024-06-01", points[0].Date)
	assert.Equal(t, "Jun 01", points[0].DateLabel)
	assert.Equal(t, "2024-06-04", points[3].Date)

	assert.Equal(t, dto.DailySeriesPoint{Date: "2024-06-01", DateLabel: "Jun 01", Clicks: 1}, points[0])
	assert.Equal(t, 1, points[1].Links)
	assert.Equal(t, 1, points[2].Clicks)
	assert.Equal(t, 1, points[2].Conversions)
	assert.Equal(t, dto.DailySeriesPoint{Date: "2024-06-04", DateLabel: "Jun 04"}, points[3])
}

func TestComputeTopProductsAndRegions(t *testing.T) {
	day := statsFrom.Add(time.Hour)
	withOrder := func(row *models.ClickLog, itemID, city string) *models.ClickLog {
		if itemID != "" {
			row.ItemID = &itemID
		}
		if city != "" {
			row.ShippingCity = &city
		}
		return row
	}
	rows := []*models.ClickLog{
		withOrder(converted(ledgerRow(1, "a", day), models.CorrelationMethodMLItemMatch, "100", day), "MLM1", "Monterrey"),
		withOrder(converted(ledgerRow(2, "b", day), models.CorrelationMethodMLItemMatch, "100", day), "mlm1", "monterrey"),
		withOrder(converted(ledgerRow(3, "c", day), models.CorrelationMethodManual, "150", day), "", "Ciudad de México"),
		withOrder(converted(ledgerRow(4, "d", day), models.CorrelationMethodManual, "1", day), "", ""),
		ledgerRow(5, "e", day),
	}

	products := ComputeTopProducts(rows, statsFrom, statsTo, false, 10)
	require.Len(t, products, 3)
	assert.Equal(t, 2, products[0].Conversions)
	assert.True(t, decimal.NewFromInt(200).Equal(products[0].Revenue))
	assert.Equal(t, "Producto c", products[1].ProductName)

	regions := ComputeTopRegions(rows, statsFrom, statsTo, false, 10)
	require.Len(t, regions, 2)
	assert.Equal(t, "Monterrey", regions[0].City)
	assert.Equal(t, 2, regions[0].Conversions)
	assert.Equal(t, "Ciudad de México", regions[1].City)

	assert.Len(t, ComputeTopProducts(rows, statsFrom, statsTo, false, 1), 1)
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

	from, to, err := resolveRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -30), from)

	from, to, err = resolveRange("2024-06-01", "2024-06-07", now)
	require.NoError(t, err)
	assert.Equal(t, statsFrom, from)
	assert.Equal(t, statsTo, to)

	_, to, err = resolveRange("2024-06-01", "2024-06-07T12:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC), to)

	_, _, err = resolveRange("2024-06-10", "2024-06-01", now)
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, ErrStartDateAfterEndDate)

	_, _, err = resolveRange("yesterday", "", now)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestConversionStatsFlow(t *testing.T) {
	repo := newMemClickLogRepo()
	day := statsFrom.Add(30 * time.Hour)
	repo.seed(
		converted(clicked(issued("uid-1", "ana", "Teclado", strPtr("MLM9"), day), day.Add(time.Hour)), models.CorrelationMethodMLItemMatch, "300.00", day.Add(2*time.Hour)),
		issued("uid-2", "luis", "Mouse", nil, day),
	)
	flow := NewConversionStatsFlow(repo).(*ConversionStatsFlowImpl)
	flow.now = fixedClock(statsTo)
	ctx := context.Background()
	rangeReq := &dto.StatsRangeRequest{DateFrom: "2024-06-01", DateTo: "2024-06-07"}

	t.Run("ConversionStats", func(t *testing.T) {
		out, err := flow.ConversionStats(ctx, rangeReq)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Stats.TotalLinks)
		assert.Equal(t, 1, out.Stats.Conversions)
	})

	t.Run("DailySeries", func(t *testing.T) {
		out, err := flow.DailySeries(ctx, &dto.DailySeriesRequest{StartDate: "2024-06-01", EndDate: "2024-06-07"})
		require.NoError(t, err)
		require.Len(t, out.ChartData, 7)
		assert.Equal(t, 2, out.ChartData[1].Links)

		_, err = flow.DailySeries(ctx, &dto.DailySeriesRequest{StartDate: "2022-01-01", EndDate: "2024-06-07"})
		assert.ErrorIs(t, err, ErrDateRangeTooLarge)
	})

	t.Run("RecentConversions", func(t *testing.T) {
		out, err := flow.RecentConversions(ctx, 0)
		require.NoError(t, err)
		require.Len(t, out.ClickLogs, 1)
		assert.Equal(t, "ana", out.ClickLogs[0].CustomerRef)
		require.NotNil(t, out.ClickLogs[0].ConversionData)
	})

	t.Run("TopProducts", func(t *testing.T) {
		out, err := flow.TopProducts(ctx, rangeReq)
		require.NoError(t, err)
		require.Len(t, out.Products, 1)
		assert.Equal(t, "Teclado", out.Products[0].ProductName)
	})

	t.Run("TopRegionsEmpty", func(t *testing.T) {
		out, err := flow.TopRegions(ctx, rangeReq)
		require.NoError(t, err)
		assert.Empty(t, out.Regions)
	})

	t.Run("ExportConversions", func(t *testing.T) {
		name, data, err := flow.ExportConversions(ctx, rangeReq)
		require.NoError(t, err)
		assert.Equal(t, "conversions_2024-06-01_2024-06-08.xlsx", name)

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer func() { _ = xl.Close() }()
		rows, err := xl.GetRows("Conversions")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "customer_ref", rows[0][2])
		assert.Equal(t, "ana", rows[1][2])
		assert.Equal(t, "300.00", rows[1][7])
		assert.Equal(t, "ml_item_match", rows[1][8])
	})

	t.Run("InvalidRange", func(t *testing.T) {
		_, err := flow.ConversionStats(ctx, &dto.StatsRangeRequest{DateFrom: "2024-06-07", DateTo: "2024-06-01"})
		assert.True(t, IsValidationError(err))
	})
}
