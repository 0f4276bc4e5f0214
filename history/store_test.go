package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := NewStore(t.TempDir())

	record, err := store.Append(Record{ModelType: "veo3", ConfigName: "yeti", Status: "succeeded"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if record.ID == "" {
		t.Error("ID not assigned")
	}
	if record.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
}

func TestAppendThenList(t *testing.T) {
	store := NewStore(t.TempDir())

	for i := 0; i < 3; i++ {
		if _, err := store.Append(Record{
			ModelType:  "veo3",
			ConfigName: fmt.Sprintf("cfg-%d", i),
			Status:     "succeeded",
			CreatedAt:  time.Date(2026, 8, 23, 10, i, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// Append order, oldest first.
	if records[0].ConfigName != "cfg-0" || records[2].ConfigName != "cfg-2" {
		t.Errorf("records out of order: %v, %v", records[0].ConfigName, records[2].ConfigName)
	}
}

func TestListMissingFileIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	records, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty history, got %d records", len(records))
	}
}

func TestListFilters(t *testing.T) {
	store := NewStore(t.TempDir())

	seed := []Record{
		{ModelType: "veo3", ConfigName: "yeti", Status: "succeeded", CreatedAt: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
		{ModelType: "flux", ConfigName: "fox", Status: "failed", CreatedAt: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)},
		{ModelType: "veo3", ConfigName: "fox", Status: "failed", CreatedAt: time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC)},
	}
	for _, r := range seed {
		if _, err := store.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	byModel, err := store.List(Filter{ModelType: "veo3"})
	if err != nil {
		t.Fatalf("list by model: %v", err)
	}
	if len(byModel) != 2 {
		t.Errorf("model filter: got %d records", len(byModel))
	}

	byConfig, err := store.List(Filter{ConfigName: "fox"})
	if err != nil {
		t.Fatalf("list by config: %v", err)
	}
	if len(byConfig) != 2 {
		t.Errorf("config filter: got %d records", len(byConfig))
	}

	since, err := store.List(Filter{Since: time.Date(2026, 8, 21, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("since filter: got %d records", len(since))
	}

	limited, err := store.List(Filter{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ConfigName != "fox" || limited[0].ModelType != "veo3" {
		t.Errorf("limit must keep the most recent record: %+v", limited)
	}
}

func TestConcurrentAppendsAreLossless(t *testing.T) {
	store := NewStore(t.TempDir())
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Append(Record{ModelType: "veo3", ConfigName: fmt.Sprintf("c%d", i), Status: "succeeded"}); err != nil {
				t.Errorf("append %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	records, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != n {
		t.Fatalf("expected %d records, got %d", n, len(records))
	}
	seen := map[string]bool{}
	for _, r := range records {
		if seen[r.ConfigName] {
			t.Errorf("duplicate record: %s", r.ConfigName)
		}
		seen[r.ConfigName] = true
	}
}

func TestListSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Append(Record{ModelType: "veo3", Status: "succeeded"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, DefaultFileName), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	file.WriteString("{not json\n")
	file.Close()

	if _, err := store.Append(Record{ModelType: "flux", Status: "failed"}); err != nil {
		t.Fatalf("append after corruption: %v", err)
	}

	records, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("corrupt line must not hide valid records: got %d", len(records))
	}
}

func TestAppendErrorType(t *testing.T) {
	// Point the store at a path whose parent is a regular file.
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	store := NewStore(filepath.Join(blocker, "sub"))

	_, err := store.Append(Record{ModelType: "veo3"})
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("expected WriteError, got %v", err)
	}
	if !strings.Contains(we.Error(), DefaultFileName) {
		t.Errorf("error should name the path: %v", we)
	}
}

func TestStats(t *testing.T) {
	store := NewStore(t.TempDir())

	seed := []Record{
		{ModelType: "veo3", Status: "succeeded", Duration: 10 * time.Second},
		{ModelType: "veo3", Status: "succeeded", Duration: 20 * time.Second},
		{ModelType: "veo3", Status: "failed"},
		{ModelType: "flux", Status: "succeeded", Duration: 4 * time.Second},
	}
	for _, r := range seed {
		if _, err := store.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Succeeded != 3 || stats.Failed != 1 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if len(stats.ByModel) != 2 {
		t.Fatalf("expected 2 model groups, got %d", len(stats.ByModel))
	}
	// Sorted by model type: flux before veo3.
	if stats.ByModel[0].ModelType != "flux" || stats.ByModel[1].ModelType != "veo3" {
		t.Errorf("groups out of order: %+v", stats.ByModel)
	}
	veo := stats.ByModel[1]
	if veo.Total != 3 || veo.Succeeded != 2 || veo.Failed != 1 {
		t.Errorf("unexpected veo3 stats: %+v", veo)
	}
	if veo.AvgTime != 15*time.Second {
		t.Errorf("avg time should skip untimed attempts: %v", veo.AvgTime)
	}
}

func TestStatsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 0 || len(stats.ByModel) != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}
