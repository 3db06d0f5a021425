package retrieval

import (
	"context"
	"testing"

	"github.com/szarkamarci/modularai/internal/models"
	"github.com/szarkamarci/modularai/internal/utils"
)

type fakeStore struct {
	vectors map[string]models.EmbeddingVector // keyed by productID|version
	purged  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{vectors: make(map[string]models.EmbeddingVector)}
}

func (f *fakeStore) key(productID, version string) string { return productID + "|" + version }

func (f *fakeStore) UpsertVector(_ context.Context, v models.EmbeddingVector) error {
	f.vectors[f.key(v.ProductID, v.ModelVersion)] = v
	return nil
}

func (f *fakeStore) VectorsForVersion(_ context.Context, version string) ([]models.EmbeddingVector, error) {
	var out []models.EmbeddingVector
	for _, v := range f.vectors {
		if v.ModelVersion == version {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteVector(_ context.Context, productID, version string) error {
	delete(f.vectors, f.key(productID, version))
	return nil
}

func (f *fakeStore) PurgeVectors(_ context.Context, version string) (int64, error) {
	var n int64
	for k, v := range f.vectors {
		if v.ModelVersion == version {
			delete(f.vectors, k)
			n++
		}
	}
	f.purged = append(f.purged, version)
	return n, nil
}

type fakeEmbedder struct {
	dimension int
	calls     int
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, text, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, f.dimension)
	for i := range vec {
		vec[i] = float32((len(text)+i)%7) + 0.5
	}
	return vec, nil
}

func catalog() []models.Product {
	return []models.Product{
		{ID: "p1", Name: "Whole Milk", Category: "dairy"},
		{ID: "p2", Name: "Sourdough Bread", Category: "bakery"},
	}
}

func TestIndexerEmbedsNewProducts(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dimension: 4}
	ix := NewIndexer(store, embedder, nil)

	report, err := ix.Sync(context.Background(), catalog(), "embedder-v1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if report.Embedded != 2 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(store.vectors) != 2 {
		t.Fatalf("expected 2 stored vectors, got %d", len(store.vectors))
	}
}

func TestIndexerSkipsUnchangedText(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dimension: 4}
	ix := NewIndexer(store, embedder, nil)

	if _, err := ix.Sync(context.Background(), catalog(), "embedder-v1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	firstCalls := embedder.calls

	report, err := ix.Sync(context.Background(), catalog(), "embedder-v1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Skipped != 2 || report.Embedded != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if embedder.calls != firstCalls {
		t.Fatalf("unchanged products must not hit the embedder")
	}
}

func TestIndexerReembedsChangedText(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dimension: 4}
	ix := NewIndexer(store, embedder, nil)

	products := catalog()
	if _, err := ix.Sync(context.Background(), products, "embedder-v1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	products[0].Description = "Organic, 3.5% fat"
	report, err := ix.Sync(context.Background(), products, "embedder-v1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Embedded != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	stored := store.vectors[store.key("p1", "embedder-v1")]
	if stored.TextHash != TextHash(products[0].SourceText()) {
		t.Fatalf("stored hash must track the new source text")
	}
}

func TestIndexerRemovesStaleVectors(t *testing.T) {
	store := newFakeStore()
	ix := NewIndexer(store, &fakeEmbedder{dimension: 4}, nil)

	if _, err := ix.Sync(context.Background(), catalog(), "embedder-v1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	report, err := ix.Sync(context.Background(), catalog()[:1], "embedder-v1")
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if report.Removed != 1 {
		t.Fatalf("expected one removed vector, got %+v", report)
	}
	if _, ok := store.vectors[store.key("p2", "embedder-v1")]; ok {
		t.Fatalf("stale vector must be deleted")
	}
}

func TestIndexerRebuildsOnDimensionChange(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dimension: 4}
	ix := NewIndexer(store, embedder, nil)

	products := catalog()
	if _, err := ix.Sync(context.Background(), products, "embedder-v1"); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// The embedder starts returning a different dimension for changed text.
	embedder.dimension = 8
	products[0].Description = "new text"
	report, err := ix.Sync(context.Background(), products, "embedder-v1")
	if err != nil {
		t.Fatalf("sync with new dimension: %v", err)
	}
	if !report.Rebuilt {
		t.Fatalf("expected a full rebuild, got %+v", report)
	}
	if report.Embedded != 2 {
		t.Fatalf("rebuild must re-embed the full catalog, got %+v", report)
	}
	for _, v := range store.vectors {
		if len(v.Vector) != 8 {
			t.Fatalf("mixed dimensions after rebuild: %d", len(v.Vector))
		}
	}
	if len(store.purged) != 1 {
		t.Fatalf("rebuild must purge the old version first")
	}
}

func TestIndexerPropagatesEmbedderFailure(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dimension: 4, err: utils.NewAppError(utils.KindEmbedderUnavailable, "embed", "down", nil)}
	ix := NewIndexer(store, embedder, nil)

	_, err := ix.Sync(context.Background(), catalog(), "embedder-v1")
	if !utils.IsKind(err, utils.KindEmbedderUnavailable) {
		t.Fatalf("expected EmbedderUnavailable, got %v", err)
	}
	if len(store.vectors) != 0 {
		t.Fatalf("no vectors should be written after a failed embed")
	}
}

func TestIndexerVersionsAreIndependent(t *testing.T) {
	store := newFakeStore()
	ix := NewIndexer(store, &fakeEmbedder{dimension: 4}, nil)

	if _, err := ix.Sync(context.Background(), catalog(), "embedder-v1"); err != nil {
		t.Fatalf("v1 sync: %v", err)
	}
	if _, err := ix.Sync(context.Background(), catalog(), "embedder-v2"); err != nil {
		t.Fatalf("v2 sync: %v", err)
	}
	if len(store.vectors) != 4 {
		t.Fatalf("versions must coexist until purged, got %d vectors", len(store.vectors))
	}

	n, err := ix.PurgeVersion(context.Background(), "embedder-v1")
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 || len(store.vectors) != 2 {
		t.Fatalf("purge must only remove the retired version")
	}
}
