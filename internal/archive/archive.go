// Package archive implements the append-only, content-addressed JSON
// Archive Store: the durable record of every fetched source and every
// LLM output produced against it.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lodestar/internal/core"
)

// ErrAlreadyWritten is returned by WriteSource when a source is already
// archived for the given kind/external ID and overwrite was not requested.
var ErrAlreadyWritten = errors.New("archive: source already written")

// Store is a filesystem-backed Archive Store rooted at Root. Directory
// layout: <root>/<kind>/<YYYY-MM>/<external_id>/ holding source.json,
// outputs/<output_type>.v<n>.json, and processing.jsonl.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating it if it does not exist.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{Root: root}, nil
}

func (s *Store) itemDir(kind core.ContentKind, externalID string, at time.Time) string {
	return filepath.Join(s.Root, string(kind), at.Format("2006-01"), sanitize(externalID))
}

// findItemDir locates an existing item directory regardless of the
// month it was written under, since reads are keyed by external ID
// alone.
func (s *Store) findItemDir(kind core.ContentKind, externalID string) (string, error) {
	kindDir := filepath.Join(s.Root, string(kind))
	months, err := os.ReadDir(kindDir)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("list months: %w", err)
	}
	target := sanitize(externalID)
	for _, month := range months {
		if !month.IsDir() {
			continue
		}
		candidate := filepath.Join(kindDir, month.Name(), target)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// WriteSource archives the raw fetched source (transcript text,
// article HTML-derived text) for a content item. Policy: never
// overwrite an existing source.json by default; a second call for the
// same external ID returns ErrAlreadyWritten unless overwrite is true.
func (s *Store) WriteSource(kind core.ContentKind, externalID string, provenance core.Provenance, raw []byte, overwrite bool) (string, error) {
	dir, err := s.findItemDir(kind, externalID)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = s.itemDir(kind, externalID, provenance.FetchedAt)
	} else if !overwrite {
		if _, err := os.Stat(filepath.Join(dir, "source.json")); err == nil {
			return "", fmt.Errorf("%w: %s:%s", ErrAlreadyWritten, kind, externalID)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create item dir: %w", err)
	}

	record := sourceRecord{
		ExternalID: externalID,
		Kind:       kind,
		Provenance: provenance,
		Raw:        string(raw),
		ArchivedAt: time.Now().UTC(),
	}
	path := filepath.Join(dir, "source.json")
	if err := writeJSONAtomic(path, record); err != nil {
		return "", fmt.Errorf("write source: %w", err)
	}
	return path, nil
}

type sourceRecord struct {
	ExternalID string          `json:"external_id"`
	Kind       core.ContentKind `json:"kind"`
	Provenance core.Provenance  `json:"provenance"`
	Raw        string          `json:"raw"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// ReadSource reads back the archived raw source for a content item.
func (s *Store) ReadSource(kind core.ContentKind, externalID string) (raw []byte, provenance core.Provenance, err error) {
	dir, err := s.findItemDir(kind, externalID)
	if err != nil {
		return nil, core.Provenance{}, err
	}
	if dir == "" {
		return nil, core.Provenance{}, fmt.Errorf("no archived source for %s:%s", kind, externalID)
	}
	data, err := os.ReadFile(filepath.Join(dir, "source.json"))
	if err != nil {
		return nil, core.Provenance{}, fmt.Errorf("read source: %w", err)
	}
	var record sourceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, core.Provenance{}, fmt.Errorf("unmarshal source: %w", err)
	}
	return []byte(record.Raw), record.Provenance, nil
}

// AppendLLMOutput archives one versioned LLM output, never overwriting
// a prior attempt. outputType distinguishes the normalizer's phases
// ("structured_metadata", "normalized_metadata_<version>"); attempt ordinals are
// assigned automatically starting at 1.
func (s *Store) AppendLLMOutput(kind core.ContentKind, externalID, outputType string, output core.LLMOutput) (string, int, error) {
	dir, err := s.findItemDir(kind, externalID)
	if err != nil {
		return "", 0, err
	}
	if dir == "" {
		return "", 0, fmt.Errorf("no archive directory for %s:%s; write source first", kind, externalID)
	}
	outputsDir := filepath.Join(dir, "outputs")
	if err := os.MkdirAll(outputsDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create outputs dir: %w", err)
	}

	attempt := nextAttempt(outputsDir, outputType)
	output.OutputType = outputType
	output.Attempt = attempt
	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}

	path := filepath.Join(outputsDir, fmt.Sprintf("%s.v%d.json", sanitize(outputType), attempt))
	if err := writeJSONAtomic(path, output); err != nil {
		return "", 0, fmt.Errorf("write llm output: %w", err)
	}
	return path, attempt, nil
}

func nextAttempt(outputsDir, outputType string) int {
	entries, err := os.ReadDir(outputsDir)
	if err != nil {
		return 1
	}
	prefix := sanitize(outputType) + ".v"
	max := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimSuffix(name[len(prefix):], ".json"), "%d", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}

// ReadLatestLLMOutput returns the highest-numbered archived output of
// the given type, or ok=false if none exist.
func (s *Store) ReadLatestLLMOutput(kind core.ContentKind, externalID, outputType string) (output core.LLMOutput, ok bool, err error) {
	dir, err := s.findItemDir(kind, externalID)
	if err != nil || dir == "" {
		return core.LLMOutput{}, false, err
	}
	outputsDir := filepath.Join(dir, "outputs")
	entries, err := os.ReadDir(outputsDir)
	if os.IsNotExist(err) {
		return core.LLMOutput{}, false, nil
	}
	if err != nil {
		return core.LLMOutput{}, false, fmt.Errorf("list outputs: %w", err)
	}

	prefix := sanitize(outputType) + ".v"
	var best string
	bestN := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(strings.TrimSuffix(name[len(prefix):], ".json"), "%d", &n); err == nil && n >= bestN {
			bestN = n
			best = name
		}
	}
	if best == "" {
		return core.LLMOutput{}, false, nil
	}
	data, err := os.ReadFile(filepath.Join(outputsDir, best))
	if err != nil {
		return core.LLMOutput{}, false, fmt.Errorf("read output: %w", err)
	}
	if err := json.Unmarshal(data, &output); err != nil {
		return core.LLMOutput{}, false, fmt.Errorf("unmarshal output: %w", err)
	}
	return output, true, nil
}

// AppendProcessingRecord appends one ingestion-attempt record to the
// item's processing log. The log is append-only: never rewritten,
// never truncated.
func (s *Store) AppendProcessingRecord(kind core.ContentKind, externalID string, record core.ProcessingRecord) error {
	dir, err := s.findItemDir(kind, externalID)
	if err != nil {
		return err
	}
	if dir == "" {
		return fmt.Errorf("no archive directory for %s:%s; write source first", kind, externalID)
	}
	if record.At.IsZero() {
		record.At = time.Now().UTC()
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal processing record: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "processing.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open processing log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append processing record: %w", err)
	}
	return nil
}

// ProcessingHistory reads every processing record archived for a
// content item, in the order they were written.
func (s *Store) ProcessingHistory(kind core.ContentKind, externalID string) ([]core.ProcessingRecord, error) {
	dir, err := s.findItemDir(kind, externalID)
	if err != nil || dir == "" {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "processing.jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processing log: %w", err)
	}

	var records []core.ProcessingRecord
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var rec core.ProcessingRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal processing record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Iterate calls fn once for every archived item of the given kind,
// ordered by external ID, stopping early if fn returns an error.
func (s *Store) Iterate(kind core.ContentKind, fn func(externalID string) error) error {
	kindDir := filepath.Join(s.Root, string(kind))
	months, err := os.ReadDir(kindDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list months: %w", err)
	}

	var ids []string
	for _, month := range months {
		if !month.IsDir() {
			continue
		}
		items, err := os.ReadDir(filepath.Join(kindDir, month.Name()))
		if err != nil {
			return fmt.Errorf("list items: %w", err)
		}
		for _, item := range items {
			if item.IsDir() {
				ids = append(ids, item.Name())
			}
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// writeJSONAtomic marshals v and writes it to path via a temp file in
// the same directory followed by an atomic rename, so a crash mid-write
// never leaves a corrupt or partially-written archive entry.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// sanitize maps a string to a filesystem-safe component by replacing
// path separators; external IDs are otherwise already URL-safe tokens.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
