package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/orochi-attribution/app/dto"
	"github.com/amirphl/orochi-attribution/utils"
	"github.com/xuri/excelize/v2"
)

const conversionsSheet = "Conversions"

var conversionExportHeader = []string{
	"id", "uid", "customer_ref", "product_name", "order_id", "item_id", "item_title",
	"total_amount", "method", "confidence", "is_orphan", "buyer_nickname", "shipping_city",
	"created_at", "clicked_at", "converted_at", "manual_notes",
}

// ExportConversions renders converted click logs in the range as an xlsx workbook
func (f *ConversionStatsFlowImpl) ExportConversions(ctx context.Context, req *dto.StatsRangeRequest) (string, []byte, error) {
	from, to, err := resolveRange(req.DateFrom, req.DateTo, f.now())
	if err != nil {
		return "", nil, err
	}
	rows, err := f.repo.ListConvertedBetween(ctx, from, to)
	if err != nil {
		return "", nil, NewBusinessError("FETCH_CONVERSIONS_FAILED", "Failed to fetch conversions", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()
	if err := xl.SetSheetName(xl.GetSheetName(0), conversionsSheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}
	header := conversionExportHeader
	_ = xl.SetSheetRow(conversionsSheet, "A1", &header)

	ri := 0
	for _, r := range rows {
		if req.ExcludeOrphans && r.IsOrphan {
			continue
		}
		method, confidence := "", ""
		if r.CorrelationMethod != nil {
			method = r.CorrelationMethod.String()
		}
		if r.CorrelationConfidence != nil {
			confidence = string(*r.CorrelationConfidence)
		}
		record := []string{
			strconv.FormatUint(uint64(r.ID), 10),
			r.UID,
			r.CustomerRef,
			r.ProductName,
			utils.Deref(r.OrderID),
			utils.Deref(r.ItemID),
			utils.Deref(r.ItemTitle),
			r.Revenue().StringFixed(2),
			method,
			confidence,
			strconv.FormatBool(r.IsOrphan),
			utils.Deref(r.BuyerNickname),
			utils.Deref(r.ShippingCity),
			r.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(r.ClickedAt),
			formatOptionalTime(r.ConvertedAt),
			utils.Deref(r.ManualNotes),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(conversionsSheet, cellRef, &record)
		ri++
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("conversions_%s_%s.xlsx", from.Format(utils.DateLayout), to.Format(utils.DateLayout))
	return filename, buf.Bytes(), nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
