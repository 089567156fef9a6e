package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"resale-pipeline/models"
	"resale-pipeline/storage"
	"resale-pipeline/utils"
)

// FamilyRow is one line of the family report.
type FamilyRow struct {
	Key          string
	DisplayName  string
	Status       models.FamilyStatus
	ImageCount   int
	Quota        int
	MinRequired  int
	BelowMinimum bool
}

// FamilyReport is the operational view of the reference library.
type FamilyReport struct {
	Families     []FamilyRow
	TotalImages  int
	BelowMinimum int
	LastRun      *models.CrawlRun
}

type reportStore interface {
	storage.FamilyStore
	storage.ImageStore
	storage.RunStore
}

type InsightService struct {
	store  reportStore
	logger *utils.Logger
}

func NewInsightService(store reportStore, logger *utils.Logger) *InsightService {
	return &InsightService{store: store, logger: logger}
}

// Generate builds the report from live counts. The stored image_count may lag
// behind an interrupted run, so the count is read from the images table.
func (s *InsightService) Generate(ctx context.Context) (*FamilyReport, error) {
	families, err := s.store.ListFamilies(ctx)
	if err != nil {
		return nil, err
	}

	report := &FamilyReport{Families: make([]FamilyRow, 0, len(families))}
	for _, f := range families {
		n, err := s.store.CountImages(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		row := FamilyRow{
			Key:          f.Key(),
			DisplayName:  f.DisplayName,
			Status:       f.Status,
			ImageCount:   n,
			Quota:        f.Quota,
			MinRequired:  f.MinRequired,
			BelowMinimum: n < f.MinRequired,
		}
		report.Families = append(report.Families, row)
		report.TotalImages += n
		if row.BelowMinimum {
			report.BelowMinimum++
		}
	}

	run, err := s.store.LatestRun(ctx)
	switch {
	case err == nil:
		report.LastRun = run
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, err
	}
	return report, nil
}

func (s *InsightService) Print(w io.Writer, r *FamilyReport) {
	fmt.Fprintf(w, "\n%s\n\n", text.Colors{text.Bold, text.FgMagenta}.Sprint("REFERENCE LIBRARY"))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Family", "Status", "Images", "Quota", "Min", "Below Min"})
	for _, f := range r.Families {
		below := ""
		if f.BelowMinimum {
			below = text.FgRed.Sprint("yes")
		}
		t.AppendRow(table.Row{f.Key, f.Status, f.ImageCount, f.Quota, f.MinRequired, below})
	}
	t.AppendFooter(table.Row{"Total", "", r.TotalImages, "", "", strconv.Itoa(r.BelowMinimum)})
	t.Render()

	if r.LastRun == nil {
		fmt.Fprintln(w, "\nNo crawl runs recorded yet.")
		return
	}
	run := r.LastRun
	fmt.Fprintf(w, "\nLast run %s (%s): %d complete, %d incomplete, %d skipped, %d images, %d API calls\n",
		run.ID, run.FinishedAt.Sub(run.StartedAt).Round(time.Second), run.FamiliesComplete,
		run.FamiliesIncomplete, run.FamiliesSkipped, run.ImagesStored, run.APICalls)
}

// PrintRunSummary renders the per-family outcome of a crawl run.
func PrintRunSummary(w io.Writer, s *models.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Run " + s.RunID)
	t.AppendHeader(table.Row{"Family", "Outcome", "Status", "Images", "New", "Dup", "Failed", "Searches"})
	for _, f := range s.Families {
		t.AppendRow(table.Row{
			f.Family, f.Outcome, f.Status,
			fmt.Sprintf("%d/%d", f.ImageCount, f.Quota),
			f.Stats.ImagesStored, f.Stats.ImagesDuplicate, f.Stats.ImagesFailed, f.Stats.SearchCalls,
		})
	}
	t.AppendFooter(table.Row{
		"Total", fmt.Sprintf("%d/%d done", s.FamiliesComplete, len(s.Families)), "",
		"", s.ImagesStored, s.Totals.ImagesDuplicate, s.Totals.ImagesFailed, s.APICalls,
	})
	t.Render()
}

// PrintGuidance renders priced items. Items without a price show the reason instead.
func PrintGuidance(w io.Writer, items []models.ItemGuidance) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Item", "Comps", "Excluded", "Median", "Range", "Confidence", "Max Buy", "Note"})
	for _, it := range items {
		c := it.Cleaned
		median, rng := "-", "-"
		if c.Median != nil {
			median = fmt.Sprintf("%.2f", *c.Median)
			rng = fmt.Sprintf("%.2f-%.2f", *c.Low, *c.High)
		}
		maxBuy := "-"
		if it.Guidance.HasPrice() {
			maxBuy = strconv.Itoa(*it.Guidance.MaxBuy)
		}
		t.AppendRow(table.Row{
			it.Item, c.Count, c.ExcludedCount, median, rng,
			it.Guidance.Confidence, maxBuy, truncate(it.Guidance.Reason, 60),
		})
	}
	t.Render()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
