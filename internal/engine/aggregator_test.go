package engine

import (
	"context"
	"testing"
	"time"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

type fakeReader struct {
	records []models.TransactionRecord
	err     error
	calls   int
}

func (f *fakeReader) ReadTransactions(_ context.Context, productID, storeID string, start, end time.Time) ([]models.TransactionRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func TestAggregatorZeroFillsEmptyPeriods(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{records: []models.TransactionRecord{
		{Timestamp: start.Add(2 * time.Hour), ProductID: "p1", StoreID: "s1", Quantity: 3},
		{Timestamp: start.Add(5 * time.Hour), ProductID: "p1", StoreID: "s1", Quantity: 2},
		{Timestamp: start.Add(48*time.Hour + time.Hour), ProductID: "p1", StoreID: "s1", Quantity: 4},
	}}
	agg := NewAggregator(reader, 24*time.Hour)

	series, err := agg.BuildSeries(context.Background(), "p1", "s1", start, start.Add(3*24*time.Hour))
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	if len(series.Points) != 3 {
		t.Fatalf("expected 3 periods, got %d", len(series.Points))
	}
	want := []float64{5, 0, 4}
	for i, w := range want {
		if series.Points[i].Quantity != w {
			t.Errorf("period %d: expected %.0f, got %.0f", i, w, series.Points[i].Quantity)
		}
	}
	if series.Points[1].PeriodStart != start.Add(24*time.Hour) {
		t.Errorf("zero-filled period keeps its slot: got %v", series.Points[1].PeriodStart)
	}
}

func TestAggregatorRejectsMisalignedWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(&fakeReader{}, 24*time.Hour)

	_, err := agg.BuildSeries(context.Background(), "p1", "s1", start, start.Add(36*time.Hour))
	if !utils.IsKind(err, utils.KindInvalidWindow) {
		t.Fatalf("expected InvalidWindow, got %v", err)
	}

	_, err = agg.BuildSeries(context.Background(), "p1", "s1", start, start)
	if !utils.IsKind(err, utils.KindInvalidWindow) {
		t.Fatalf("expected InvalidWindow for empty window, got %v", err)
	}
}

func TestAggregatorNetsReturnsWithinPeriod(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{records: []models.TransactionRecord{
		{Timestamp: start.Add(time.Hour), Quantity: 2},
		{Timestamp: start.Add(3 * time.Hour), Quantity: -5},
	}}
	agg := NewAggregator(reader, 24*time.Hour)

	series, err := agg.BuildSeries(context.Background(), "p1", "s1", start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	if got := series.Points[0].Quantity; got != 0 {
		t.Fatalf("net negative demand clamps to zero, got %.0f", got)
	}
}

func TestAggregatorDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{records: []models.TransactionRecord{
		{Timestamp: start.Add(time.Hour), Quantity: 7},
	}}
	agg := NewAggregator(reader, 24*time.Hour)

	first, err := agg.BuildSeries(context.Background(), "p1", "s1", start, start.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	second, err := agg.BuildSeries(context.Background(), "p1", "s1", start, start.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("build series: %v", err)
	}
	if len(first.Points) != len(second.Points) {
		t.Fatalf("length mismatch: %d vs %d", len(first.Points), len(second.Points))
	}
	for i := range first.Points {
		if first.Points[i] != second.Points[i] {
			t.Fatalf("point %d differs between runs", i)
		}
	}
}
