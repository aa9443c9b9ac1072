package queue

import (
	"path/filepath"
	"testing"
)

func TestWriteReadWorkItemRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.csv")
	item := WorkItem{
		URL:        "https://example.com/post",
		Title:      "A Post",
		Rating:     4.5,
		Importance: "high",
		Projects:   []string{"proj-a", "proj-b"},
		Manual:     true,
	}

	if err := writeWorkItemCSV(path, item); err != nil {
		t.Fatalf("writeWorkItemCSV failed: %v", err)
	}

	got, err := readWorkItemCSV(path)
	if err != nil {
		t.Fatalf("readWorkItemCSV failed: %v", err)
	}

	if got.URL != item.URL || got.Title != item.Title || got.Importance != item.Importance || !got.Manual {
		t.Errorf("roundtrip mismatch: got %+v", got)
	}
	if got.Rating != 4.5 {
		t.Errorf("expected rating 4.5, got %f", got.Rating)
	}
	if len(got.Projects) != 2 || got.Projects[0] != "proj-a" {
		t.Errorf("expected projects to roundtrip, got %v", got.Projects)
	}
}

func TestReadWorkItemCSVMissingURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "item.csv")
	if err := writeWorkItemCSV(path, WorkItem{}); err != nil {
		t.Fatalf("writeWorkItemCSV failed: %v", err)
	}
	if _, err := readWorkItemCSV(path); err == nil {
		t.Error("expected error for a work item with no url")
	}
}
