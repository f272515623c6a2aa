package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/starmart/internal/config"
)

// CanonicalStats summarizes one CSV-to-JSONL conversion.
type CanonicalStats struct {
	RowsTotal      int `json:"rows_total"`
	Written        int `json:"written"`
	SkippedNoTS    int `json:"skipped_no_ts"`
	SkippedBadDate int `json:"skipped_bad_date_value"`
	SkippedOutlier int `json:"skipped_amount_outlier"`
}

var dateToken = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}$`)

var canonicalDateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"01/02/2006",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"01/02/2006 15:04",
	"02/01/2006 15:04",
	"01-02-06",
	"02-01-06",
}

// CanonicalizeAmazonEvents converts an Amazon sale report CSV into
// canonical purchase-event JSONL, one object per line.
func CanonicalizeAmazonEvents(cfg config.PipelineConfig, csvPath string, w io.Writer) (CanonicalStats, error) {
	var stats CanonicalStats
	source := filepath.Base(csvPath)

	err := forEachCSVRow(csvPath, func(row map[string]string) error {
		stats.RowsTotal++

		ts := parseRowTimestamp(row)
		if ts == "" {
			stats.SkippedNoTS++
			return nil
		}

		orderID := pick(row, "Order ID", "Order Id", "order_id", "OrderID", "ID")
		userID := pick(row, "Customer Email", "Email", "Buyer Email", "Phone", "Customer", "Buyer", "Ship Name", "Name")
		if userID == "" {
			userID = orderID
		}
		if userID == "" {
			userID = "unknown_user"
		}

		productID := pick(row, "ASIN", "SKU", "SKU Code", "Product ID", "product_id", "Product", "Item", "Title", "Product Name", "Style")
		if productID == "" {
			productID = "unknown_product"
		}

		qty := toInt(pick(row, "Qty", "Quantity", "quantity", "Units"))
		unitPrice := toFloat(pick(row, "Unit Price", "Price", "Item Price", "unit_price"))
		amount := toFloat(pick(row, "Amount", "Sales", "Total", "Order Total", "line_total"))
		if amount == 0 && unitPrice > 0 && qty > 0 {
			amount = unitPrice * float64(qty)
		}
		if amount > cfg.EventAmountMax {
			stats.SkippedOutlier++
			return nil
		}

		currency := pick(row, "Currency", "currency")
		if currency == "" {
			currency = "USD"
		}
		country := pick(row, "Ship Country", "ship-country", "Country", "country")
		if country == "" {
			country = "unknown"
		}

		record := map[string]any{
			"event_id":       hashID(source, orderID, productID, strconv.FormatFloat(amount, 'f', -1, 64), ts),
			"ts":             ts,
			"user_id":        userID,
			"event":          "purchase",
			"amount":         amount,
			"currency":       currency,
			"country":        country,
			"order_id":       orderID,
			"product_id":     productID,
			"source_dataset": source,
		}
		if err := writeJSONLine(w, record); err != nil {
			return err
		}
		stats.Written++
		return nil
	})
	return stats, err
}

// CanonicalizeInternationalSales converts an international sale report CSV
// into canonical sale JSONL. Rows whose date column carries non-date junk
// are skipped, not guessed at.
func CanonicalizeInternationalSales(cfg config.PipelineConfig, csvPath string, w io.Writer) (CanonicalStats, error) {
	var stats CanonicalStats
	source := filepath.Base(csvPath)

	err := forEachCSVRow(csvPath, func(row map[string]string) error {
		stats.RowsTotal++

		rawDate := pick(row, "DATE", "Date", "date")
		if rawDate != "" && !dateToken.MatchString(strings.TrimSpace(rawDate)) {
			stats.SkippedBadDate++
			return nil
		}

		ts := parseRowTimestamp(row)
		if ts == "" {
			stats.SkippedNoTS++
			return nil
		}

		customer := pick(row, "CUSTOMER", "Customer", "customer")
		if customer == "" {
			customer = "unknown_customer"
		}
		sku := pick(row, "SKU", "Sku", "sku")
		if sku == "" {
			sku = "unknown_sku"
		}

		pcs := toInt(pick(row, "PCS", "Qty", "Quantity", "quantity"))
		rate := toFloat(pick(row, "RATE", "Rate", "rate"))
		grossAmt := toFloat(pick(row, "GROSS AMT", "Gross Amt", "gross_amt", "Amount", "amount"))
		if grossAmt > cfg.SaleAmountMax {
			stats.SkippedOutlier++
			return nil
		}

		currency := pick(row, "Currency", "currency")
		if currency == "" {
			currency = "USD"
		}

		record := map[string]any{
			"sale_id":        hashID(source, customer, sku, strconv.FormatFloat(grossAmt, 'f', -1, 64), ts),
			"ts":             ts,
			"date_key":       ts[:10],
			"customer":       customer,
			"sku":            sku,
			"pcs":            pcs,
			"rate":           rate,
			"gross_amt":      grossAmt,
			"currency":       currency,
			"source_dataset": source,
		}
		if err := writeJSONLine(w, record); err != nil {
			return err
		}
		stats.Written++
		return nil
	})
	return stats, err
}

func forEachCSVRow(path string, fn func(map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", path, err)
	}
	// strip a UTF-8 BOM if the export carries one
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			continue
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			fields[col] = row[i]
		}
		if err := fn(fields); err != nil {
			return err
		}
	}
}

// parseRowTimestamp tries the known date columns and formats. Date-only
// values get a noon timestamp so they stay on the same calendar day in any
// downstream handling.
func parseRowTimestamp(row map[string]string) string {
	raw := strings.TrimSpace(pick(row, "DATE", "Date", "date", "ts", "Timestamp", "timestamp"))
	if raw == "" {
		return ""
	}
	for _, layout := range canonicalDateLayouts {
		parsed, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if parsed.Hour() == 0 && parsed.Minute() == 0 && parsed.Second() == 0 && len(raw) <= 10 {
			parsed = parsed.Add(12 * time.Hour)
		}
		return parsed.Format("2006-01-02T15:04:05")
	}
	return ""
}

func pick(row map[string]string, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(row[key]); value != "" {
			return value
		}
	}
	return ""
}

var currencySymbols = []string{"₹", "$", "€", "£", ","}

func toFloat(raw string) float64 {
	for _, sym := range currencySymbols {
		raw = strings.ReplaceAll(raw, sym, "")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

func toInt(raw string) int {
	value := toFloat(raw)
	return int(value)
}

// hashID derives a stable 24-hex-char id from the identifying parts of a
// row, so re-running the canonicalizer yields the same natural keys.
func hashID(parts ...string) string {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:24]
}

func writeJSONLine(w io.Writer, record map[string]any) error {
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}
