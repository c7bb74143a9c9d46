package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"document-agent/internal/helper"
	"document-agent/internal/models"
)

// ErrPrecomputedOnly is returned when chromem asks the index to embed raw
// text. Every entry arrives with its embedding already computed.
var ErrPrecomputedOnly = errors.New("chromem index accepts precomputed embeddings only")

// Index keeps chunk embeddings in an in-memory chromem collection. The
// document ID of each entry is its chunk position.
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	prefix     string
	collection *chromem.Collection
	dimension  int
}

// NewIndex creates an empty in-memory index. Collections are named prefix
// plus a random UUID so a rebuild never collides with the one it replaces.
func NewIndex(prefix string) *Index {
	if prefix == "" {
		prefix = "documents"
	}
	return &Index{
		db:     chromem.NewDB(),
		prefix: prefix,
	}
}

func precomputedOnly(context.Context, string) ([]float32, error) {
	return nil, ErrPrecomputedOnly
}

// Build replaces the contents of the index with entries.
func (x *Index) Build(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return errors.New("no entries to index")
	}
	dim := len(entries[0].Embedding)
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if len(e.Embedding) != dim {
			return fmt.Errorf("entry %d has dimension %d, expected %d", e.Position, len(e.Embedding), dim)
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(e.Position),
			Content:   e.Content,
			Embedding: e.Embedding,
		}
	}

	id, err := helper.GenerateUUID()
	if err != nil {
		return err
	}
	name := x.prefix + "-" + id
	collection, err := x.db.CreateCollection(name, map[string]string{"prefix": x.prefix}, precomputedOnly)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		_ = x.db.DeleteCollection(name)
		return fmt.Errorf("failed to add documents: %w", err)
	}

	x.mu.Lock()
	old := x.collection
	x.collection = collection
	x.dimension = dim
	x.mu.Unlock()

	if old != nil {
		if err := x.db.DeleteCollection(old.Name); err != nil {
			log.Warn().Err(err).Str("collection", old.Name).Msg("Failed to drop previous collection")
		}
	}
	log.Debug().Str("collection", name).Int("entries", len(entries)).Int("dimension", dim).Msg("Built chromem index")
	return nil
}

// Search returns the k entries with the highest inner product to query,
// best first. k is clamped to the index size.
func (x *Index) Search(ctx context.Context, query []float32, k int) ([]models.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	x.mu.RLock()
	collection, dim := x.collection, x.dimension
	x.mu.RUnlock()

	if collection == nil {
		return nil, errors.New("index is empty")
	}
	if len(query) != dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), dim)
	}
	k = min(k, collection.Count())

	results, err := collection.QueryEmbedding(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		pos, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", r.ID, err)
		}
		hits = append(hits, models.Hit{Position: pos, Score: float64(r.Similarity)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	return hits, nil
}

// Size reports the number of indexed entries.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.collection == nil {
		return 0
	}
	return x.collection.Count()
}

// Close drops the current collection.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.collection == nil {
		return nil
	}
	err := x.db.DeleteCollection(x.collection.Name)
	x.collection = nil
	x.dimension = 0
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}
