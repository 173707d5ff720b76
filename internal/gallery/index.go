package gallery

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

const indexMaxNeighbors = 16

// IndexMetadata stores metadata for validating persisted gallery indexes.
type IndexMetadata struct {
	EntryCount   int       `json:"entry_count"`
	StudentCount int       `json:"student_count"`
	Dim          int       `json:"dim"`
	BuildTime    time.Time `json:"build_time"`
	Version      int       `json:"version"`
}

const indexMetadataVersion = 1

// Index is an in-memory HNSW nearest-neighbor index over the enrolled
// reference embeddings. It is built or loaded once at process start and is
// read-only afterwards; the RWMutex only guards the load/build window.
type Index struct {
	graph         *hnsw.Graph[int64]
	savedGraph    *hnsw.SavedGraph[int64]
	entries       map[int64]*Entry
	minSimilarity float64
	nextID        int64
	mu            sync.RWMutex
}

// NewIndex creates a new empty gallery index.
func NewIndex(minSimilarity float64) *Index {
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Index{
		entries:       make(map[int64]*Entry),
		minSimilarity: minSimilarity,
	}
}

// Add enrolls one reference embedding for a student.
func (g *Index) Add(studentID int64, embedding []float32) error {
	if len(embedding) == 0 {
		return errors.New("empty embedding")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.graph == nil {
		graph := hnsw.NewGraph[int64]()
		graph.M = indexMaxNeighbors
		graph.Ml = 1.0 / float64(indexMaxNeighbors)
		graph.Distance = hnsw.EuclideanDistance
		g.graph = graph
	}

	g.nextID++
	entry := &Entry{ID: g.nextID, StudentID: studentID, Embedding: embedding}
	g.graph.Add(hnsw.MakeNode(entry.ID, embedding))
	g.entries[entry.ID] = entry
	return nil
}

// Resolve finds the nearest enrolled embedding and converts its L2 distance
// to a similarity score. Scores below the similarity floor resolve to Unknown.
func (g *Index) Resolve(_ context.Context, embedding []float32) (Match, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil && g.savedGraph == nil {
		return Unknown, errors.New("gallery index not initialized")
	}

	var neighbors []hnsw.Node[int64]
	if g.savedGraph != nil {
		neighbors = g.savedGraph.Search(embedding, 1)
	} else {
		neighbors = g.graph.Search(embedding, 1)
	}
	if len(neighbors) == 0 {
		return Unknown, nil
	}

	nearest := neighbors[0]
	entry, ok := g.entries[nearest.Key]
	if !ok {
		return Unknown, nil
	}

	// Recompute the exact distance from the node value; the graph search
	// distance is approximate for pruned layers.
	similarity := SimilarityFromDistance(L2Distance(embedding, nearest.Value))
	if similarity < g.minSimilarity {
		return Unknown, nil
	}
	return Match{StudentID: entry.StudentID, Similarity: similarity}, nil
}

// Count returns the number of enrolled reference embeddings.
func (g *Index) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Students returns the number of distinct enrolled identities.
func (g *Index) Students() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[int64]struct{}, len(g.entries))
	for _, e := range g.entries {
		seen[e.StudentID] = struct{}{}
	}
	return len(seen)
}

// Dim returns the embedding dimension, or 0 for an empty index.
func (g *Index) Dim() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, e := range g.entries {
		return len(e.Embedding)
	}
	return 0
}

// Save persists the graph plus an entry sidecar and a metadata file, so the
// gallery can be loaded without re-enrolling at startup.
func (g *Index) Save(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.graph == nil && g.savedGraph == nil {
		return errors.New("nothing to save: gallery index is empty")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create gallery index file: %w", err)
	}
	if g.savedGraph != nil {
		err = g.savedGraph.Export(f)
	} else {
		err = g.graph.Export(f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("exporting gallery graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing gallery index file: %w", err)
	}

	entries := make([]Entry, 0, len(g.entries))
	for _, e := range g.entries {
		entries = append(entries, *e)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return fmt.Errorf("failed to encode gallery entries: %w", err)
	}
	if err := os.WriteFile(path+".entries", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write gallery entries file: %w", err)
	}

	meta := IndexMetadata{
		EntryCount:   len(entries),
		StudentCount: g.studentsLocked(),
		Dim:          g.dimLocked(),
		BuildTime:    time.Now(),
		Version:      indexMetadataVersion,
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal gallery metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write gallery metadata file: %w", err)
	}

	return nil
}

func (g *Index) studentsLocked() int {
	seen := make(map[int64]struct{}, len(g.entries))
	for _, e := range g.entries {
		seen[e.StudentID] = struct{}{}
	}
	return len(seen)
}

func (g *Index) dimLocked() int {
	for _, e := range g.entries {
		return len(e.Embedding)
	}
	return 0
}

// Load restores a persisted gallery index and its entry sidecar.
func Load(path string, minSimilarity float64) (*Index, error) {
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load gallery index: %w", err)
	}

	data, err := os.ReadFile(path + ".entries")
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery entries file: %w", err)
	}
	var entries []Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode gallery entries: %w", err)
	}

	g := NewIndex(minSimilarity)
	g.savedGraph = saved
	for i := range entries {
		e := &entries[i]
		g.entries[e.ID] = e
		if e.ID > g.nextID {
			g.nextID = e.ID
		}
	}
	return g, nil
}

// LoadEntries reads the entry sidecar of a persisted gallery index without
// loading the graph.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path + ".entries")
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery entries file: %w", err)
	}
	var entries []Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode gallery entries: %w", err)
	}
	return entries, nil
}

// LoadMetadata reads the metadata sidecar of a persisted gallery index.
func LoadMetadata(path string) (IndexMetadata, error) {
	var meta IndexMetadata

	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return meta, fmt.Errorf("failed to read gallery metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to unmarshal gallery metadata: %w", err)
	}
	return meta, nil
}
