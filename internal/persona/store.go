// Package persona implements the Persona Store: a small set of
// named 1024-dim vectors built and incrementally updated from rated or
// clustered content, used by the Ranker to weight recommendations.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lodestar/internal/core"
)

// Assignment is one content item's contribution to a persona: its
// global embedding and the weight it contributes, used by both Build
// (batch, from labeled/clustered content) and Update (incremental).
type Assignment struct {
	ContentID string
	Vector []float32
	Weight float64 // e.g. derived from a rating; 1.0 if unweighted
}

// Store holds the current set of personas, keyed by label, and
// persists them to a single JSON file using the same atomic
// temp-file-plus-rename discipline as the Archive and Vocabulary
// stores.
type Store struct {
	mu sync.RWMutex
	path string
	personas map[string]*core.Persona
}

// New loads (or initializes) a persona store backed by the file at
// path. A missing file is not an error; it starts empty.
func New(path string) (*Store, error) {
	s := &Store{path: path, personas: map[string]*core.Persona{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read persona store: %w", err)
	}

	var personas []*core.Persona
	if err := json.Unmarshal(data, &personas); err != nil {
		return nil, fmt.Errorf("parse persona store: %w", err)
	}
	for _, p := range personas {
		s.personas[p.Label] = p
	}
	return s, nil
}

// Get returns the named persona, if it exists.
func (s *Store) Get(label string) (*core.Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[label]
	return p, ok
}

// All returns every persona currently held, in no particular order.
func (s *Store) All() []*core.Persona {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Persona, 0, len(s.personas))
	for _, p := range s.personas {
		out = append(out, p)
	}
	return out
}

// Build computes a persona's vector from scratch as the (optionally
// rating-weighted) mean of the given assignments' global embeddings,
// and stores it under label/description, replacing any prior vector
// for that label.
func (s *Store) Build(label, description string, assignments []Assignment) error {
	if len(assignments) == 0 {
		return fmt.Errorf("persona %q: no assignments to build from", label)
	}

	vector, err := weightedMeanPool(assignments)
	if err != nil {
		return fmt.Errorf("persona %q: %w", label, err)
	}

	s.mu.Lock()
	s.personas[label] = &core.Persona{
		Label: label,
		Description: description,
		Vector: vector,
		SampleCount: len(assignments),
		UpdatedAt: time.Now().UTC(),
	}
	s.mu.Unlock()

	return s.save()
}

// Update incrementally folds one newly labeled content item's global
// embedding into an existing persona using the online-mean formula,
// so the store never needs full recomputation as content accrues.
// weight scales the new sample's contribution (1.0 for an unweighted
// observation).
func (s *Store) Update(label string, contentVector []float32, weight float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.personas[label]
	if !ok {
		return fmt.Errorf("persona %q does not exist; build it first", label)
	}
	if len(contentVector) != len(p.Vector) {
		return fmt.Errorf("persona %q: dimension mismatch, vector has %d, persona has %d", label, len(contentVector), len(p.Vector))
	}
	if weight <= 0 {
		weight = 1.0
	}

	n := float64(p.SampleCount)
	newN := n + weight
	updated := make([]float32, len(p.Vector))
	for i := range p.Vector {
		// online mean: mean_new = mean_old + weight/n_new * (x - mean_old)
		updated[i] = p.Vector[i] + float32(weight/newN)*(contentVector[i]-p.Vector[i])
	}

	p.Vector = updated
	p.SampleCount = int(newN)
	p.UpdatedAt = time.Now().UTC()

	return s.saveLocked()
}

func weightedMeanPool(assignments []Assignment) ([]float32, error) {
	dim := len(assignments[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("assignment vectors must be non-empty")
	}

	sum := make([]float64, dim)
	totalWeight := 0.0
	for _, a := range assignments {
		if len(a.Vector) != dim {
			return nil, fmt.Errorf("assignment %q: dimension mismatch, expected %d got %d", a.ContentID, dim, len(a.Vector))
		}
		weight := a.Weight
		if weight <= 0 {
			weight = 1.0
		}
		for i, v := range a.Vector {
			sum[i] += float64(v) * weight
		}
		totalWeight += weight
	}

	if totalWeight == 0 {
		return nil, fmt.Errorf("assignments carry zero total weight")
	}

	out := make([]float32, dim)
	for i, v := range sum {
		out[i] = float32(v / totalWeight)
	}
	return out, nil
}

func (s *Store) save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

// saveLocked requires the caller already holds s.mu (read or write).
func (s *Store) saveLocked() error {
	personas := make([]*core.Persona, 0, len(s.personas))
	for _, p := range s.personas {
		personas = append(personas, p)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create persona store dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-personas-*")
	if err != nil {
		return fmt.Errorf("create temp persona file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", " ")
	if err := enc.Encode(personas); err != nil {
		tmp.Close()
		return fmt.Errorf("encode persona store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync persona store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp persona file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename persona store into place: %w", err)
	}
	return nil
}
