package persona

import (
	"path/filepath"
	"testing"
)

func vec(vals ...float32) []float32 { return vals }

func TestBuildMeanPools(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "personas.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = s.Build("golang", "Go systems content", []Assignment{
		{ContentID: "a", Vector: vec(1, 0, 0), Weight: 1.0},
		{ContentID: "b", Vector: vec(0, 1, 0), Weight: 1.0},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	p, ok := s.Get("golang")
	if !ok {
		t.Fatal("expected persona to exist")
	}
	if p.SampleCount != 2 {
		t.Errorf("expected sample count 2, got %d", p.SampleCount)
	}
	want := []float32{0.5, 0.5, 0}
	for i, v := range want {
		if p.Vector[i] != v {
			t.Errorf("vector[%d] = %f, want %f", i, p.Vector[i], v)
		}
	}
}

func TestBuildWeighted(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "personas.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = s.Build("golang", "desc", []Assignment{
		{ContentID: "a", Vector: vec(1, 0), Weight: 3.0},
		{ContentID: "b", Vector: vec(0, 1), Weight: 1.0},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	p, _ := s.Get("golang")
	if p.Vector[0] != 0.75 || p.Vector[1] != 0.25 {
		t.Errorf("expected weighted mean [0.75 0.25], got %v", p.Vector)
	}
}

func TestUpdateIncrementalMean(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "personas.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Build("golang", "desc", []Assignment{
		{ContentID: "a", Vector: vec(0, 0), Weight: 1.0},
	}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if err := s.Update("golang", vec(2, 2), 1.0); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	p, _ := s.Get("golang")
	if p.Vector[0] != 1.0 || p.Vector[1] != 1.0 {
		t.Errorf("expected mean of [0,0] and [2,2] to be [1,1], got %v", p.Vector)
	}
	if p.SampleCount != 2 {
		t.Errorf("expected sample count 2, got %d", p.SampleCount)
	}
}

func TestUpdateUnknownPersona(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "personas.json"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Update("missing", vec(1, 2), 1.0); err == nil {
		t.Error("expected error updating a persona that was never built")
	}
}

func TestPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "personas.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Build("golang", "desc", []Assignment{{ContentID: "a", Vector: vec(1, 2, 3), Weight: 1.0}}); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	reloaded, err := New(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	p, ok := reloaded.Get("golang")
	if !ok {
		t.Fatal("expected persona to survive reload")
	}
	if p.Description != "desc" {
		t.Errorf("expected description to roundtrip, got %q", p.Description)
	}
}
