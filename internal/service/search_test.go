package service

import (
	"context"
	"testing"
	"time"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/logger"
)

func newTestSearch(store *fakeMemeStore, usage *fakeUsageStore, index *fakeIndex, embed *fakeEmbedder, popular PopularCache) *SearchService {
	return NewSearchService(store, usage, index, embed, popular, logger.GetDefault(), SearchConfig{
		TextSpace:          "text-dense",
		ImageSpace:         "image",
		TextPrefetchLimit:  3,
		ImagePrefetchLimit: 3,
		PageSize:           6,
		RRFK:               60,
		DuplicateThreshold: 0.99,
		PopularWindow:      72 * time.Hour,
	})
}

func addPoint(index *fakeIndex, id int32, status domain.PublishStatus, textVec, imageVec []float32) {
	index.points[id] = &fakePoint{
		status: string(status),
		vectors: map[string][]float32{
			"text-dense": textVec,
			"image":      imageVec,
		},
	}
}

func TestSearchFusedOrder(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	usage := newFakeUsageStore()
	index := newFakeIndex()
	embed := newFakeEmbedder()
	embed.textVectors["cat"] = []float32{1, 0, 0, 0}
	search := newTestSearch(store, usage, index, embed, nil)

	for _, id := range []int32{10, 20, 30, 40} {
		store.add(id, domain.PublishStatusPublished, "Кот")
	}
	// Text ranking [10, 20, 30], image ranking [20, 10, 40]; both ties
	// break by ascending id, so the fused order is [10, 20, 30, 40].
	addPoint(index, 10, domain.PublishStatusPublished, []float32{0.9, 0, 0, 0}, []float32{0.8, 0, 0, 0})
	addPoint(index, 20, domain.PublishStatusPublished, []float32{0.8, 0, 0, 0}, []float32{0.9, 0, 0, 0})
	addPoint(index, 30, domain.PublishStatusPublished, []float32{0.7, 0, 0, 0}, []float32{0.1, 0, 0, 0})
	addPoint(index, 40, domain.PublishStatusPublished, []float32{0.1, 0, 0, 0}, []float32{0.7, 0, 0, 0})

	resp, err := search.Search(ctx, 1000, "cat")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if resp.SearchID == 0 {
		t.Error("Search must return the search log id")
	}

	wantOrder := []int32{10, 20, 30, 40}
	if len(resp.Results) != len(wantOrder) {
		t.Fatalf("Got %d results, want %d", len(resp.Results), len(wantOrder))
	}
	for i, want := range wantOrder {
		got := resp.Results[i]
		if got.Meme.ID != want {
			t.Errorf("Position %d: got meme %d, want %d", i, got.Meme.ID, want)
		}
		if got.Source != domain.SourceQuery {
			t.Errorf("Position %d: got source %q, want %q", i, got.Source, domain.SourceQuery)
		}
	}
}

func TestSearchExcludesDrafts(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	usage := newFakeUsageStore()
	index := newFakeIndex()
	embed := newFakeEmbedder()
	embed.textVectors["cat"] = []float32{1, 0, 0, 0}
	search := newTestSearch(store, usage, index, embed, nil)

	store.add(1, domain.PublishStatusPublished, "Кот")
	store.add(2, domain.PublishStatusDraft, "Кот")
	store.add(3, domain.PublishStatusPublished, "Кот")
	addPoint(index, 1, domain.PublishStatusPublished, []float32{0.5, 0, 0, 0}, []float32{0.5, 0, 0, 0})
	// Draft point, correctly labeled: filtered at query time however
	// relevant its vectors are.
	addPoint(index, 2, domain.PublishStatusDraft, []float32{1, 0, 0, 0}, []float32{1, 0, 0, 0})
	// Stale point: the payload still claims published but the store
	// knows better; hydration must drop it.
	addPoint(index, 3, domain.PublishStatusPublished, []float32{0.9, 0, 0, 0}, []float32{0.9, 0, 0, 0})
	store.memes[3].Meme.PublishStatus = domain.PublishStatusDraft

	resp, err := search.Search(ctx, 1000, "cat")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Meme.ID != 1 {
		t.Fatalf("Expected only published meme 1, got %+v", resp.Results)
	}
}

func TestSearchEmptyQueryFallbackComposition(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	usage := newFakeUsageStore()
	search := newTestSearch(store, usage, newFakeIndex(), newFakeEmbedder(), nil)

	for id := int32(1); id <= 7; id++ {
		store.add(id, domain.PublishStatusPublished, "Кот")
	}
	usage.recent = []int32{1, 2, 3}
	// Meme 3 appears in both source lists; recents win.
	usage.popular = []int32{3, 4, 5, 6, 7}

	resp, err := search.Search(ctx, 1000, "   ")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []struct {
		id     int32
		source string
	}{
		{1, domain.SourceRecent},
		{2, domain.SourceRecent},
		{3, domain.SourceRecent},
		{4, domain.SourcePopular},
		{5, domain.SourcePopular},
		{6, domain.SourcePopular},
	}
	if len(resp.Results) != len(want) {
		t.Fatalf("Got %d results, want %d (page size)", len(resp.Results), len(want))
	}
	seen := make(map[int32]bool)
	for i, w := range want {
		got := resp.Results[i]
		if got.Meme.ID != w.id || got.Source != w.source {
			t.Errorf("Position %d: got (%d, %q), want (%d, %q)", i, got.Meme.ID, got.Source, w.id, w.source)
		}
		if seen[got.Meme.ID] {
			t.Errorf("Duplicate meme %d in fallback results", got.Meme.ID)
		}
		seen[got.Meme.ID] = true
	}
}

func TestSearchEmptyQueryStillLogged(t *testing.T) {
	ctx := context.Background()
	usage := newFakeUsageStore()
	search := newTestSearch(newFakeMemeStore(), usage, newFakeIndex(), newFakeEmbedder(), nil)

	resp, err := search.Search(ctx, 42, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	log, ok := usage.logs[resp.SearchID]
	if !ok {
		t.Fatal("Empty-query search must append a log row")
	}
	if log.UserID != 42 {
		t.Errorf("Log user: got %d, want 42", log.UserID)
	}
	if log.Query == nil || *log.Query != "" {
		t.Errorf("Log must record the raw empty query, got %v", log.Query)
	}
}

func TestSearchFailsWhenEmbeddingFails(t *testing.T) {
	ctx := context.Background()
	embed := newFakeEmbedder()
	embed.failText = true
	search := newTestSearch(newFakeMemeStore(), newFakeUsageStore(), newFakeIndex(), embed, nil)

	if _, err := search.Search(ctx, 1, "cat"); err == nil {
		t.Fatal("Search must fail when an embedding lookup fails")
	}
}

type fakePopularCache struct {
	ids  []int32
	sets int
}

func (f *fakePopularCache) Get(ctx context.Context) ([]int32, error) { return f.ids, nil }
func (f *fakePopularCache) Set(ctx context.Context, ids []int32) error {
	f.ids = append([]int32(nil), ids...)
	f.sets++
	return nil
}

func TestSearchPopularServedFromCache(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	usage := newFakeUsageStore()
	popular := &fakePopularCache{}
	search := newTestSearch(store, usage, newFakeIndex(), newFakeEmbedder(), popular)

	for id := int32(1); id <= 3; id++ {
		store.add(id, domain.PublishStatusPublished, "Кот")
	}
	usage.popular = []int32{1, 2}

	if _, err := search.Search(ctx, 1, ""); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if popular.sets != 1 {
		t.Fatalf("Expected one cache fill, got %d", popular.sets)
	}

	// The store ranking changes, but the warm cache still serves the
	// old list until it expires.
	usage.popular = []int32{3}
	resp, err := search.Search(ctx, 1, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Meme.ID != 1 || resp.Results[1].Meme.ID != 2 {
		t.Errorf("Expected cached popular list [1 2], got %+v", resp.Results)
	}
	if popular.sets != 1 {
		t.Errorf("Cache hit must not rewrite the cache, sets=%d", popular.sets)
	}
}

func TestSimilarExcludesSelf(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	search := newTestSearch(store, newFakeUsageStore(), index, newFakeEmbedder(), nil)

	for _, id := range []int32{1, 2, 3} {
		store.add(id, domain.PublishStatusPublished, "Кот")
	}
	addPoint(index, 1, domain.PublishStatusPublished, []float32{1, 0, 0, 0}, []float32{1, 0, 0, 0})
	addPoint(index, 2, domain.PublishStatusPublished, []float32{0.9, 0, 0, 0}, []float32{0.9, 0, 0, 0})
	addPoint(index, 3, domain.PublishStatusPublished, []float32{0.5, 0, 0, 0}, []float32{0.5, 0, 0, 0})

	results, err := search.Similar(ctx, 1, 10)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Meme.ID == 1 {
			t.Error("Similar must not return the reference meme itself")
		}
	}
	if results[0].Meme.ID != 2 {
		t.Errorf("Closest meme should rank first, got %d", results[0].Meme.ID)
	}
}

func TestFindNearDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeMemeStore()
	index := newFakeIndex()
	search := newTestSearch(store, newFakeUsageStore(), index, newFakeEmbedder(), nil)

	// A draft: duplicates must be detected among unreviewed content too.
	store.add(5, domain.PublishStatusDraft, "Кот")
	addPoint(index, 5, domain.PublishStatusDraft, []float32{0, 1, 0, 0}, []float32{1, 0, 0, 0})

	match, err := search.FindNearDuplicate(ctx, []float32{1, 0, 0, 0})
	if err != nil {
		t.Fatalf("FindNearDuplicate failed: %v", err)
	}
	if match == nil || match.ID != 5 {
		t.Fatalf("Expected draft meme 5 as near-duplicate, got %+v", match)
	}

	match, err = search.FindNearDuplicate(ctx, []float32{0, 0, 1, 0})
	if err != nil {
		t.Fatalf("FindNearDuplicate failed: %v", err)
	}
	if match != nil {
		t.Fatalf("Dissimilar vector must not match, got meme %d", match.ID)
	}
}

func TestSaveChosen(t *testing.T) {
	ctx := context.Background()
	usage := newFakeUsageStore()
	search := newTestSearch(newFakeMemeStore(), usage, newFakeIndex(), newFakeEmbedder(), nil)

	resp, err := search.Search(ctx, 1, "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if err := search.SaveChosen(ctx, resp.SearchID, 7, domain.SourcePopular); err != nil {
		t.Fatalf("SaveChosen failed: %v", err)
	}
	log := usage.logs[resp.SearchID]
	if log.ChosenMemeID == nil || *log.ChosenMemeID != 7 {
		t.Errorf("Chosen meme not recorded: %+v", log)
	}
	if log.ChosenSource == nil || *log.ChosenSource != domain.SourcePopular {
		t.Errorf("Chosen source not recorded: %+v", log)
	}

	if err := search.SaveChosen(ctx, resp.SearchID, 7, "x"); err == nil {
		t.Error("Unknown provenance tag must be rejected")
	}
}
