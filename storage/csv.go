package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"resale-pipeline/models"
)

// DefaultItem is the group name used when a comps file has no item column.
const DefaultItem = "default"

// CompGroup is the set of sold comps for one item, in file order.
type CompGroup struct {
	Item  string
	Comps []models.RawComp
}

var dateLayouts = []string{time.RFC3339, "2006-01-02", "01/02/2006"}

// ReadCompsCSV opens path and parses it with ParseComps.
func ReadCompsCSV(path string) ([]CompGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()
	return ParseComps(f)
}

// ParseComps reads sold comps. The header must contain sold_price; item,
// shipping_cost, sale_date, condition, title and thumbnail are optional.
// A blank sold_price is read as 0 and left for the cleaner to reject.
func ParseComps(r io.Reader) ([]CompGroup, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["sold_price"]; !ok {
		return nil, errors.New("csv: missing sold_price column")
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var groups []CompGroup
	index := make(map[string]int)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}

		price, err := parseMoney(field(rec, "sold_price"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: sold_price: %w", line, err)
		}
		shipping, err := parseMoney(field(rec, "shipping_cost"))
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: shipping_cost: %w", line, err)
		}

		comp := models.RawComp{
			SoldPrice:    price,
			ShippingCost: shipping,
			SaleDate:     parseDate(field(rec, "sale_date")),
			Condition:    field(rec, "condition"),
			Title:        field(rec, "title"),
			Thumbnail:    field(rec, "thumbnail"),
		}

		item := field(rec, "item")
		if item == "" {
			item = DefaultItem
		}
		gi, ok := index[item]
		if !ok {
			gi = len(groups)
			index[item] = gi
			groups = append(groups, CompGroup{Item: item})
		}
		groups[gi].Comps = append(groups[gi].Comps, comp)
	}
	return groups, nil
}

func parseMoney(s string) (float64, error) {
	s = strings.TrimPrefix(strings.ReplaceAll(s, ",", ""), "$")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseDate(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// GuidanceCSVWriter writes priced items to a CSV file. It is safe for concurrent use.
type GuidanceCSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewGuidanceCSVWriter creates (or truncates) the file at path and writes the
// header row. Intermediate directories are created automatically.
func NewGuidanceCSVWriter(path string) (*GuidanceCSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"item", "retained", "excluded", "median", "low", "high",
		"confidence", "max_buy", "reason_code", "reason",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &GuidanceCSVWriter{file: f, writer: w}, nil
}

// Write appends one row per item. Absent prices are written as empty cells.
func (g *GuidanceCSVWriter) Write(items []models.ItemGuidance) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, it := range items {
		reasonCode, reason := it.Guidance.ReasonCode, it.Guidance.Reason
		if reasonCode == models.ReasonNone {
			reasonCode, reason = it.Cleaned.ReasonCode, it.Cleaned.Reason
		}
		row := []string{
			it.Item,
			strconv.Itoa(it.Cleaned.Count),
			strconv.Itoa(it.Cleaned.ExcludedCount),
			formatPrice(it.Cleaned.Median),
			formatPrice(it.Cleaned.Low),
			formatPrice(it.Cleaned.High),
			string(it.Cleaned.Confidence),
			formatInt(it.Guidance.MaxBuy),
			string(reasonCode),
			reason,
		}
		if err := g.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	g.writer.Flush()
	return g.writer.Error()
}

// Close flushes and closes the underlying file.
func (g *GuidanceCSVWriter) Close() error {
	g.writer.Flush()
	return g.file.Close()
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func formatInt(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}
