package modelstore

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenHistory failed: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryInsertAndQuery(t *testing.T) {
	h := openTestHistory(t)

	older := &EvaluationRecord{
		Model:       "accident",
		Version:     1,
		Accuracy:    0.91,
		Loss:        0.24,
		SampleCount: 2000,
		CreatedAt:   100,
	}
	if err := h.Insert(older); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if older.ID == "" {
		t.Fatal("expected generated evaluation id")
	}
	if _, err := uuid.Parse(older.ID); err != nil {
		t.Errorf("id %q is not a uuid: %v", older.ID, err)
	}

	newer := &EvaluationRecord{
		Model:       "accident",
		Version:     2,
		Accuracy:    0.94,
		Loss:        0.19,
		SampleCount: 2000,
		MetricsJSON: json.RawMessage(`{"epochs":500}`),
		CreatedAt:   200,
	}
	if err := h.Insert(newer); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	latest, err := h.Latest("accident")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.Version != 2 {
		t.Fatalf("latest = %+v, want version 2", latest)
	}
	if latest.Accuracy != 0.94 {
		t.Errorf("latest accuracy = %f, want 0.94", latest.Accuracy)
	}
	if string(latest.MetricsJSON) != `{"epochs":500}` {
		t.Errorf("latest metrics = %s", latest.MetricsJSON)
	}

	recs, err := h.ListByModel("accident")
	if err != nil {
		t.Fatalf("ListByModel failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Version != 2 || recs[1].Version != 1 {
		t.Errorf("records out of order: %d then %d", recs[0].Version, recs[1].Version)
	}
	if recs[1].MetricsJSON != nil {
		t.Errorf("expected nil metrics on the first record, got %s", recs[1].MetricsJSON)
	}

	other, err := h.Latest("risk-reference")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if other != nil {
		t.Errorf("expected nil for unknown model, got %+v", other)
	}
}

func TestHistoryDelete(t *testing.T) {
	h := openTestHistory(t)

	rec := &EvaluationRecord{Model: "accident", Version: 1, Accuracy: 0.9}
	if err := h.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := h.Delete(rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := h.Delete(rec.ID); err == nil {
		t.Error("expected error deleting a missing evaluation")
	}

	latest, err := h.Latest("accident")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest != nil {
		t.Errorf("expected empty history, got %+v", latest)
	}
}

func TestHistoryMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	h1, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("first OpenHistory failed: %v", err)
	}
	rec := &EvaluationRecord{Model: "accident", Version: 1, Accuracy: 0.9, CreatedAt: 50}
	if err := h1.Insert(rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening must hit the no-change migration path and keep the data.
	h2, err := OpenHistory(path)
	if err != nil {
		t.Fatalf("second OpenHistory failed: %v", err)
	}
	defer h2.Close()

	latest, err := h2.Latest("accident")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest == nil || latest.ID != rec.ID {
		t.Errorf("record did not survive reopen: %+v", latest)
	}
}
