// Package vocabulary implements the versioned controlled vocabulary:
// canonical forms, aliases, and an evolution log seeded from corpus
// statistics and advanced only by explicit consolidation.
package vocabulary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"lodestar/internal/archive"
	"lodestar/internal/core"
)

// Manager reads and writes vocabulary versions under a root directory.
// Each version is an immutable JSON snapshot; "ACTIVE" is a small
// pointer file naming the current version.
type Manager struct {
	root string
}

func New(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vocabulary root: %w", err)
	}
	return &Manager{root: root}, nil
}

func (m *Manager) versionPath(version string) string {
	return filepath.Join(m.root, version+".json")
}

func (m *Manager) activePointerPath() string {
	return filepath.Join(m.root, "ACTIVE")
}

// ActiveVersion returns the label of the current active version, or
// "" with ok=false if no vocabulary has been seeded yet.
func (m *Manager) ActiveVersion() (version string, ok bool, err error) {
	data, err := os.ReadFile(m.activePointerPath())
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read active pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// Load reads one vocabulary version's snapshot.
func (m *Manager) Load(version string) (*core.Vocabulary, error) {
	data, err := os.ReadFile(m.versionPath(version))
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", version, err)
	}
	var vocab core.Vocabulary
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", version, err)
	}
	return &vocab, nil
}

// LoadActive loads the active version's snapshot.
func (m *Manager) LoadActive() (*core.Vocabulary, error) {
	version, ok, err := m.ActiveVersion()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no active vocabulary version; seed one first")
	}
	return m.Load(version)
}

// CanonicalOf resolves a raw tag to its canonical form within a
// vocabulary snapshot: case-insensitive, with alias lookup.
func CanonicalOf(vocab *core.Vocabulary, rawTag string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(rawTag))
	if needle == "" {
		return "", false
	}
	if _, ok := vocab.Entries[rawTag]; ok {
		return rawTag, true
	}
	for canonical := range vocab.Entries {
		if strings.ToLower(canonical) == needle {
			return canonical, true
		}
	}
	if canonical, ok := vocab.AliasToCanonical[needle]; ok {
		return canonical, true
	}
	return "", false
}

// TopN returns the vocabulary's top-N canonical forms by frequency, the
// compact enumeration handed to Phase 2 of the Tag Normalizer.
func TopN(vocab *core.Vocabulary, n int) []string {
	type kv struct {
		canonical string
		frequency int
	}
	entries := make([]kv, 0, len(vocab.Entries))
	for canonical, entry := range vocab.Entries {
		entries = append(entries, kv{canonical, entry.Frequency})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].frequency != entries[j].frequency {
			return entries[i].frequency > entries[j].frequency
		}
		return entries[i].canonical < entries[j].canonical
	})
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = entries[i].canonical
	}
	return out
}

// SeedFromCorpus counts raw tags across every archived item's latest
// structured_metadata output and materializes the top-K as the initial
// vocabulary version (v1). It never mutates an existing version.
func (m *Manager) SeedFromCorpus(store *archive.Store, topK int) (*core.Vocabulary, error) {
	if _, ok, err := m.ActiveVersion(); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("vocabulary already seeded; seed_from_corpus only runs once")
	}

	counts := map[string]int{}
	countTag := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		counts[tag]++
	}

	for _, kind := range []core.ContentKind{core.KindYouTubeVideo, core.KindWebArticle} {
		err := store.Iterate(kind, func(externalID string) error {
			output, ok, err := store.ReadLatestLLMOutput(kind, externalID, "structured_metadata")
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			metadata, err := decodeMetadata(output.Value)
			if err != nil {
				return nil // tolerate malformed historical entries during seeding
			}
			for _, tag := range metadata.SubjectMatter {
				countTag(tag)
			}
			for _, tag := range metadata.Techniques {
				countTag(tag)
			}
			for _, tag := range metadata.Tools {
				countTag(tag)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", kind, err)
		}
	}

	type kv struct {
		tag string
		count int
	}
	ranked := make([]kv, 0, len(counts))
	for tag, count := range counts {
		ranked = append(ranked, kv{tag, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].tag < ranked[j].tag
	})
	if topK > len(ranked) {
		topK = len(ranked)
	}

	vocab := &core.Vocabulary{
		Version: "v1",
		Entries: map[string]*core.VocabularyEntry{},
		AliasToCanonical: map[string]string{},
		CreatedAt: time.Now(),
	}
	for i := 0; i < topK; i++ {
		vocab.Entries[ranked[i].tag] = &core.VocabularyEntry{
			Canonical: ranked[i].tag,
			Frequency: ranked[i].count,
			FirstSeen: "v1",
		}
	}

	if err := m.writeVersion(vocab); err != nil {
		return nil, err
	}
	if err := m.setActive("v1"); err != nil {
		return nil, err
	}
	return vocab, nil
}

// ConsolidationProposals describes a human-reviewed set of vocabulary
// changes to fold into a new version.
type ConsolidationProposals struct {
	// Merges maps an alias to the canonical form it should resolve to.
	Merges map[string]string
	// Renames maps an existing canonical form to its new spelling.
	Renames map[string]string
	// Additions lists brand-new canonical forms (e.g. promoted
	// tentative tags) with an optional description.
	Additions map[string]string
}

// Consolidate applies a reviewed set of proposals to the current
// vocabulary, producing a new version. It never mutates the input.
func (m *Manager) Consolidate(current *core.Vocabulary, proposals ConsolidationProposals) (*core.Vocabulary, error) {
	nextVersion, err := nextVersionLabel(current.Version)
	if err != nil {
		return nil, err
	}

	next := &core.Vocabulary{
		Version: nextVersion,
		Entries: map[string]*core.VocabularyEntry{},
		AliasToCanonical: map[string]string{},
		CreatedAt: time.Now(),
	}
	for canonical, entry := range current.Entries {
		copied := *entry
		next.Entries[canonical] = &copied
	}
	for alias, canonical := range current.AliasToCanonical {
		next.AliasToCanonical[alias] = canonical
	}

	for oldCanonical, newCanonical := range proposals.Renames {
		entry, ok := next.Entries[oldCanonical]
		if !ok {
			continue
		}
		delete(next.Entries, oldCanonical)
		entry.Canonical = newCanonical
		entry.Aliases = append(entry.Aliases, oldCanonical)
		next.Entries[newCanonical] = entry
		next.AliasToCanonical[strings.ToLower(oldCanonical)] = newCanonical
	}

	for alias, canonical := range proposals.Merges {
		if _, ok := next.Entries[canonical]; !ok {
			return nil, fmt.Errorf("merge target %q is not a canonical form in %s", canonical, current.Version)
		}
		next.AliasToCanonical[strings.ToLower(alias)] = canonical
		entry := next.Entries[canonical]
		entry.Aliases = append(entry.Aliases, alias)
	}

	for canonical, description := range proposals.Additions {
		if _, exists := next.Entries[canonical]; exists {
			continue
		}
		next.Entries[canonical] = &core.VocabularyEntry{
			Canonical: canonical,
			Description: description,
			FirstSeen: nextVersion,
			Tentative: true,
		}
	}

	if err := m.writeVersion(next); err != nil {
		return nil, err
	}
	if err := m.setActive(nextVersion); err != nil {
		return nil, err
	}
	return next, nil
}

func nextVersionLabel(version string) (string, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(version, "v"))
	if err != nil {
		return "", fmt.Errorf("malformed vocabulary version %q: %w", version, err)
	}
	return fmt.Sprintf("v%d", n+1), nil
}

func (m *Manager) writeVersion(vocab *core.Vocabulary) error {
	path := m.versionPath(vocab.Version)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("vocabulary version %s already exists; versions are immutable", vocab.Version)
	}
	data, err := json.MarshalIndent(vocab, "", " ")
	if err != nil {
		return fmt.Errorf("marshal vocabulary: %w", err)
	}
	tmp, err := os.CreateTemp(m.root, ".tmp-vocab-*")
	if err != nil {
		return fmt.Errorf("create temp vocabulary file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write vocabulary: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync vocabulary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close vocabulary temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (m *Manager) setActive(version string) error {
	tmp, err := os.CreateTemp(m.root, ".tmp-active-*")
	if err != nil {
		return fmt.Errorf("create temp active pointer: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(version); err != nil {
		tmp.Close()
		return fmt.Errorf("write active pointer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close active pointer temp file: %w", err)
	}
	return os.Rename(tmp.Name(), m.activePointerPath())
}

func decodeMetadata(value any) (core.NormalizedMetadata, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return core.NormalizedMetadata{}, err
	}
	var metadata core.NormalizedMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return core.NormalizedMetadata{}, err
	}
	return metadata, nil
}
