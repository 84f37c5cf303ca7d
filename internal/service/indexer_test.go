package service

import (
	"context"
	"reflect"
	"testing"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/logger"
)

func newTestIndexer(store *fakeMemeStore, index *fakeIndex, embed *fakeEmbedder) *Indexer {
	return NewIndexer(store, index, embed, fakeThumbs{}, logger.GetDefault(), &IndexerConfig{
		TextSpace:  "text-dense",
		ImageSpace: "image",
	})
}

func TestSyncMemePublishInvariant(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	indexer := newTestIndexer(store, index, newFakeEmbedder())

	meme := store.add(1, domain.PublishStatusPublished, "Кот")
	if err := indexer.SyncMeme(ctx, meme, nil); err != nil {
		t.Fatalf("SyncMeme failed: %v", err)
	}
	if exists, _ := index.PointExists(ctx, 1); !exists {
		t.Fatal("Published meme should have a point after sync")
	}

	meme.Meme.PublishStatus = domain.PublishStatusDraft
	if err := indexer.SyncMeme(ctx, meme, nil); err != nil {
		t.Fatalf("SyncMeme failed: %v", err)
	}
	if exists, _ := index.PointExists(ctx, 1); exists {
		t.Fatal("Unpublishing should remove the point")
	}

	meme.Meme.PublishStatus = domain.PublishStatusTrash
	if err := indexer.SyncMeme(ctx, meme, nil); err != nil {
		t.Fatalf("SyncMeme for trashed meme failed: %v", err)
	}
	if exists, _ := index.PointExists(ctx, 1); exists {
		t.Fatal("Trashed meme must not have a point")
	}
}

func TestSyncMemeIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	indexer := newTestIndexer(store, index, newFakeEmbedder())

	meme := store.add(7, domain.PublishStatusPublished, "Кот")
	if err := indexer.SyncMeme(ctx, meme, nil); err != nil {
		t.Fatalf("First sync failed: %v", err)
	}
	first := index.points[7]

	if err := indexer.SyncMeme(ctx, meme, nil); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	second := index.points[7]

	if len(index.points) != 1 {
		t.Fatalf("Expected a single point, got %d", len(index.points))
	}
	if !reflect.DeepEqual(first.vectors, second.vectors) {
		t.Errorf("Repeated sync changed vectors: %v vs %v", first.vectors, second.vectors)
	}
	if first.status != second.status {
		t.Errorf("Repeated sync changed payload: %q vs %q", first.status, second.status)
	}
}

func TestSyncMemeNoPartialWrite(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	embed := newFakeEmbedder()
	embed.failImage = true
	indexer := newTestIndexer(store, index, embed)

	meme := store.add(3, domain.PublishStatusPublished, "Кот")
	if err := indexer.SyncMeme(ctx, meme, nil); err == nil {
		t.Fatal("Expected sync to fail when image embedding fails")
	}
	if exists, _ := index.PointExists(ctx, 3); exists {
		t.Fatal("Failed sync must not write any vector")
	}
}

func TestSyncMemeReusesPrecomputedImageVector(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	embed := newFakeEmbedder()
	indexer := newTestIndexer(store, index, embed)

	meme := store.add(4, domain.PublishStatusPublished, "Кот")
	precomputed := []float32{0.1, 0.2, 0.3, 0.4}
	if err := indexer.SyncMeme(ctx, meme, precomputed); err != nil {
		t.Fatalf("SyncMeme failed: %v", err)
	}
	if embed.imageCalls != 0 {
		t.Errorf("Expected no image embedding calls, got %d", embed.imageCalls)
	}
	if got := index.points[4].vectors["image"]; !reflect.DeepEqual(got, precomputed) {
		t.Errorf("Stored image vector %v, want %v", got, precomputed)
	}
}

func TestReindexAllRebuildsFromScratch(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	indexer := newTestIndexer(store, index, newFakeEmbedder())

	store.add(1, domain.PublishStatusPublished, "Один")
	store.add(2, domain.PublishStatusDraft, "Два")
	store.add(3, domain.PublishStatusPublished, "Три")

	// A leftover point that the rebuild must wipe.
	index.points[99] = &fakePoint{status: string(domain.PublishStatusPublished)}

	stats, err := indexer.ReindexAll(ctx)
	if err != nil {
		t.Fatalf("ReindexAll failed: %v", err)
	}
	if stats.Synced != 2 || stats.Skipped != 1 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	for _, tc := range []struct {
		id   int32
		want bool
	}{
		{1, true}, {2, false}, {3, true}, {99, false},
	} {
		if exists, _ := index.PointExists(ctx, tc.id); exists != tc.want {
			t.Errorf("Point %d: exists=%v, want %v", tc.id, exists, tc.want)
		}
	}
}

func TestHealRestoresMissingPoints(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	indexer := newTestIndexer(store, index, newFakeEmbedder())

	store.add(1, domain.PublishStatusPublished, "Один")
	store.add(2, domain.PublishStatusPublished, "Два")
	if _, err := indexer.ReindexAll(ctx); err != nil {
		t.Fatalf("ReindexAll failed: %v", err)
	}
	reference := index.points[2]

	// Simulate a lost point.
	if err := index.Delete(ctx, 2); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	stats, err := indexer.Heal(ctx)
	if err != nil {
		t.Fatalf("Heal failed: %v", err)
	}
	if stats.Synced != 1 || stats.Skipped != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	restored, ok := index.points[2]
	if !ok {
		t.Fatal("Heal did not restore the missing point")
	}
	if !reflect.DeepEqual(restored.vectors, reference.vectors) {
		t.Errorf("Restored vectors %v differ from original sync %v", restored.vectors, reference.vectors)
	}
}

func TestHealDeletesOrphanedPoints(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	indexer := newTestIndexer(store, index, newFakeEmbedder())

	published := store.add(1, domain.PublishStatusPublished, "Один")
	if err := indexer.SyncMeme(ctx, published, nil); err != nil {
		t.Fatalf("SyncMeme failed: %v", err)
	}

	// An unpublished meme and a deleted meme still holding points.
	store.add(2, domain.PublishStatusDraft, "Два")
	index.points[2] = &fakePoint{status: string(domain.PublishStatusPublished)}
	index.points[50] = &fakePoint{status: string(domain.PublishStatusPublished)}

	stats, err := indexer.Heal(ctx)
	if err != nil {
		t.Fatalf("Heal failed: %v", err)
	}
	if stats.Deleted != 2 {
		t.Errorf("Expected 2 deleted orphans, got %d", stats.Deleted)
	}
	if exists, _ := index.PointExists(ctx, 1); !exists {
		t.Error("Heal must keep the published meme's point")
	}
	for _, id := range []int32{2, 50} {
		if exists, _ := index.PointExists(ctx, id); exists {
			t.Errorf("Heal must delete orphaned point %d", id)
		}
	}
}
