package queue

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WorkItem is one row of a queue CSV file: the URL to ingest plus the
// optional columns the ingestion accepts into the content payload.
type WorkItem struct {
	URL string
	Title string
	Rating float64
	Importance string
	Projects []string
	Manual bool // true for operator-submitted items, false for scheduled
}

var csvHeader = []string{"url", "title", "rating", "importance", "projects", "manual"}

// writeWorkItemCSV writes item as a single-row CSV file with header,
// atomically via temp-file-plus-rename.
func writeWorkItemCSV(path string, item WorkItem) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-item-*")
	if err != nil {
		return fmt.Errorf("create temp work item file: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(csvHeader); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write work item header: %w", err)
	}
	row := []string{
		item.URL,
		item.Title,
		strconv.FormatFloat(item.Rating, 'f', -1, 64),
		item.Importance,
		strings.Join(item.Projects, ";"),
		strconv.FormatBool(item.Manual),
	}
	if err := w.Write(row); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write work item row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flush work item csv: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync work item file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close work item file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename work item into place: %w", err)
	}
	return nil
}

// readWorkItemCSV parses a single-row queue CSV file.
func readWorkItemCSV(path string) (WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return WorkItem{}, fmt.Errorf("open work item file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return WorkItem{}, fmt.Errorf("parse work item csv: %w", err)
	}
	if len(records) < 2 {
		return WorkItem{}, fmt.Errorf("work item csv %s has no data row", path)
	}

	header := records[0]
	row := records[1]
	cols := map[string]string{}
	for i, name := range header {
		if i < len(row) {
			cols[strings.TrimSpace(name)] = row[i]
		}
	}

	item := WorkItem{
		URL: cols["url"],
		Title: cols["title"],
		Importance: cols["importance"],
	}
	if item.URL == "" {
		return WorkItem{}, fmt.Errorf("work item csv %s missing required url column", path)
	}
	if raw, ok := cols["rating"]; ok && raw != "" {
		rating, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return WorkItem{}, fmt.Errorf("parse rating in %s: %w", path, err)
		}
		item.Rating = rating
	}
	if raw, ok := cols["projects"]; ok && raw != "" {
		item.Projects = strings.Split(raw, ";")
	}
	if raw, ok := cols["manual"]; ok && raw != "" {
		manual, err := strconv.ParseBool(raw)
		if err != nil {
			return WorkItem{}, fmt.Errorf("parse manual flag in %s: %w", path, err)
		}
		item.Manual = manual
	}
	return item, nil
}
