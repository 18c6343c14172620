package businessflow

import (
	"sort"
	"strings"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/models"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/shopspring/decimal"
)

// The functions in this file are pure: they read the rows they are given and never modify them.

// ComputeConversionStats rolls up click logs created in [from, to)
func ComputeConversionStats(rows []*models.ClickLog, from, to time.Time, excludeOrphans bool, topN int) dto.ConversionStats {
	stats := dto.ConversionStats{
		DateFrom:        from.UTC(),
		DateTo:          to.UTC(),
		ExcludeOrphans:  excludeOrphans,
		TotalRevenue:    decimal.Zero,
		RevenuePerClick: decimal.Zero,
		MethodBreakdown: make(map[string]int, len(models.AllCorrelationMethods)),
		TopCustomers:    []dto.CustomerSpend{},
	}
	for _, m := range models.AllCorrelationMethods {
		stats.MethodBreakdown[m.String()] = 0
	}

	spend := make(map[string]*dto.CustomerSpend)
	for _, row := range rows {
		if row == nil || !createdIn(row, from, to) {
			continue
		}
		if row.IsOrphan && row.Converted {
			stats.OrphanConversions++
		}
		if excludeOrphans && row.IsOrphan {
			continue
		}
		stats.TotalLinks++
		if row.IsClicked() {
			stats.ClickedLinks++
		}
		if !row.Converted {
			continue
		}
		stats.Conversions++
		revenue := row.Revenue()
		stats.TotalRevenue = stats.TotalRevenue.Add(revenue)
		if row.CorrelationMethod != nil {
			stats.MethodBreakdown[row.CorrelationMethod.String()]++
			switch row.CorrelationMethod.Confidence() {
			case models.ConfidenceHigh:
				stats.ConfidenceBreakdown.High++
			case models.ConfidenceMedium:
				stats.ConfidenceBreakdown.Medium++
			default:
				stats.ConfidenceBreakdown.Low++
			}
		}
		if row.IsOrphan {
			continue
		}
		cs, ok := spend[row.CustomerRef]
		if !ok {
			cs = &dto.CustomerSpend{CustomerRef: row.CustomerRef, Revenue: decimal.Zero}
			spend[row.CustomerRef] = cs
		}
		cs.Conversions++
		cs.Revenue = cs.Revenue.Add(revenue)
	}

	stats.ClickRate = ratio(stats.ClickedLinks, stats.TotalLinks)
	stats.ConversionRate = ratio(stats.Conversions, stats.TotalLinks)
	if stats.ClickedLinks > 0 {
		stats.RevenuePerClick = stats.TotalRevenue.Div(decimal.NewFromInt(int64(stats.ClickedLinks))).Round(2)
	}

	for _, cs := range spend {
		stats.TopCustomers = append(stats.TopCustomers, *cs)
	}
	sort.Slice(stats.TopCustomers, func(i, j int) bool {
		a, b := stats.TopCustomers[i], stats.TopCustomers[j]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		if a.Conversions != b.Conversions {
			return a.Conversions > b.Conversions
		}
		return a.CustomerRef < b.CustomerRef
	})
	if topN > 0 && len(stats.TopCustomers) > topN {
		stats.TopCustomers = stats.TopCustomers[:topN]
	}
	return stats
}

// ComputeDailySeries buckets links by creation day, clicks by click day and conversions by
// conversion day. Every UTC day from from up to (not including) to is present.
func ComputeDailySeries(rows []*models.ClickLog, from, to time.Time) []dto.DailySeriesPoint {
	start := utils.StartOfDayUTC(from)
	index := make(map[string]int)
	points := make([]dto.DailySeriesPoint, 0)
	for day := start; day.Before(to.UTC()); day = day.AddDate(0, 0, 1) {
		key := day.Format(utils.DateLayout)
		index[key] = len(points)
		points = append(points, dto.DailySeriesPoint{Date: key, DateLabel: day.Format("Jan 02")})
	}

	bump := func(t *time.Time, fn func(p *dto.DailySeriesPoint)) {
		if t == nil || t.Before(from) || !t.Before(to) {
			return
		}
		if i, ok := index[t.UTC().Format(utils.DateLayout)]; ok {
			fn(&points[i])
		}
	}
	for _, row := range rows {
		if row == nil {
			continue
		}
		created := row.CreatedAt
		bump(&created, func(p *dto.DailySeriesPoint) { p.Links++ })
		bump(row.ClickedAt, func(p *dto.DailySeriesPoint) { p.Clicks++ })
		if row.Converted {
			bump(row.ConvertedAt, func(p *dto.DailySeriesPoint) { p.Conversions++ })
		}
	}
	return points
}

// ComputeTopProducts groups converted logs by sold item, highest revenue first
func ComputeTopProducts(rows []*models.ClickLog, from, to time.Time, excludeOrphans bool, limit int) []dto.TopProduct {
	groups := make(map[string]*dto.TopProduct)
	keys := make([]string, 0)
	for _, row := range convertedIn(rows, from, to, excludeOrphans) {
		key, name := productKey(row)
		g, ok := groups[key]
		if !ok {
			g = &dto.TopProduct{ProductName: name, ItemID: row.ItemID, Revenue: decimal.Zero}
			groups[key] = g
			keys = append(keys, key)
		}
		g.Conversions++
		g.Revenue = g.Revenue.Add(row.Revenue())
	}

	out := make([]dto.TopProduct, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rankedBefore(out[i].Revenue, out[j].Revenue, out[i].Conversions, out[j].Conversions, out[i].ProductName, out[j].ProductName)
	})
	return truncate(out, limit)
}

// ComputeTopRegions groups converted logs by shipping city; sales without a city are left out
func ComputeTopRegions(rows []*models.ClickLog, from, to time.Time, excludeOrphans bool, limit int) []dto.TopRegion {
	groups := make(map[string]*dto.TopRegion)
	keys := make([]string, 0)
	for _, row := range convertedIn(rows, from, to, excludeOrphans) {
		city := strings.TrimSpace(utils.Deref(row.ShippingCity))
		key := NormalizeText(city)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &dto.TopRegion{City: city, Revenue: decimal.Zero}
			groups[key] = g
			keys = append(keys, key)
		}
		g.Conversions++
		g.Revenue = g.Revenue.Add(row.Revenue())
	}

	out := make([]dto.TopRegion, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rankedBefore(out[i].Revenue, out[j].Revenue, out[i].Conversions, out[j].Conversions, out[i].City, out[j].City)
	})
	return truncate(out, limit)
}

func rankedBefore(revA, revB decimal.Decimal, countA, countB int, nameA, nameB string) bool {
	if c := revA.Cmp(revB); c != 0 {
		return c > 0
	}
	if countA != countB {
		return countA > countB
	}
	return nameA < nameB
}

func productKey(row *models.ClickLog) (string, string) {
	name := strings.TrimSpace(row.ProductName)
	if row.ItemTitle != nil && strings.TrimSpace(*row.ItemTitle) != "" && row.IsOrphan {
		name = strings.TrimSpace(*row.ItemTitle)
	}
	if row.ItemID != nil && *row.ItemID != "" {
		return "item:" + strings.ToUpper(*row.ItemID), name
	}
	return "name:" + NormalizeText(name), name
}

func convertedIn(rows []*models.ClickLog, from, to time.Time, excludeOrphans bool) []*models.ClickLog {
	out := make([]*models.ClickLog, 0, len(rows))
	for _, row := range rows {
		if row == nil || !row.Converted || !createdIn(row, from, to) {
			continue
		}
		if excludeOrphans && row.IsOrphan {
			continue
		}
		out = append(out, row)
	}
	return out
}

func createdIn(row *models.ClickLog, from, to time.Time) bool {
	return !row.CreatedAt.Before(from) && row.CreatedAt.Before(to)
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
