package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/repository"
)

// fakePoint mirrors what the index stores for one meme.
type fakePoint struct {
	vectors map[string][]float32
	status  string
}

// fakeIndex is an in-memory vector index scoring by dot product, with
// the same tie-break (descending score, ascending ID) as the real one.
type fakeIndex struct {
	points map[int32]*fakePoint
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: make(map[int32]*fakePoint)}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeIndex) RecreateCollection(ctx context.Context) error {
	f.points = make(map[int32]*fakePoint)
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, memeID int32, vectors map[string][]float32, publishStatus string) error {
	copied := make(map[string][]float32, len(vectors))
	for space, vec := range vectors {
		copied[space] = append([]float32(nil), vec...)
	}
	f.points[memeID] = &fakePoint{vectors: copied, status: publishStatus}
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, memeID int32) error {
	delete(f.points, memeID)
	return nil
}

func (f *fakeIndex) PointExists(ctx context.Context, memeID int32) (bool, error) {
	_, ok := f.points[memeID]
	return ok, nil
}

func (f *fakeIndex) ListPointIDs(ctx context.Context) ([]int32, error) {
	ids := make([]int32, 0, len(f.points))
	for id := range f.points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeIndex) QueryNearest(ctx context.Context, space string, vector []float32, limit int, onlyPublished bool) ([]repository.ScoredPoint, error) {
	var hits []repository.ScoredPoint
	for id, point := range f.points {
		if onlyPublished && point.status != string(domain.PublishStatusPublished) {
			continue
		}
		stored, ok := point.vectors[space]
		if !ok {
			continue
		}
		hits = append(hits, repository.ScoredPoint{ID: id, Score: dot(vector, stored)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeIndex) QueryNearestByID(ctx context.Context, space string, memeID int32, limit int, onlyPublished bool) ([]repository.ScoredPoint, error) {
	point, ok := f.points[memeID]
	if !ok {
		return nil, fmt.Errorf("point %d not found", memeID)
	}
	vector, ok := point.vectors[space]
	if !ok {
		return nil, fmt.Errorf("point %d has no vector in space %q", memeID, space)
	}
	hits, err := f.QueryNearest(ctx, space, vector, limit+1, onlyPublished)
	if err != nil {
		return nil, err
	}
	filtered := hits[:0]
	for _, hit := range hits {
		if hit.ID != memeID {
			filtered = append(filtered, hit)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := 0; i < len(a) && i < len(b); i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// fakeEmbedder derives deterministic vectors from its input, so two
// syncs of the same content produce identical vectors. Individual calls
// can be overridden or forced to fail.
type fakeEmbedder struct {
	textVectors map[string][]float32 // optional per-query overrides
	failText    bool
	failImage   bool
	textCalls   int
	imageCalls  int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{textVectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string, purpose EmbedPurpose) ([]float32, error) {
	f.textCalls++
	if f.failText {
		return nil, errors.New("text embedding unavailable")
	}
	if vec, ok := f.textVectors[text]; ok {
		return append([]float32(nil), vec...), nil
	}
	return vecFromString(fmt.Sprintf("%s|%s", text, purpose.task())), nil
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, image []byte, purpose EmbedPurpose) ([]float32, error) {
	f.imageCalls++
	if f.failImage {
		return nil, errors.New("image embedding unavailable")
	}
	return vecFromString(fmt.Sprintf("img|%x|%s", image, purpose.task())), nil
}

func vecFromString(s string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	seed := h.Sum32()
	vec := make([]float32, 4)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%1000) / 1000
	}
	return vec
}

// fakeMemeStore holds memes in memory and honors the published-only
// contract of the bulk lookup, ascending by ID.
type fakeMemeStore struct {
	memes map[int32]*domain.MemeWithTranslations
}

func newFakeMemeStore() *fakeMemeStore {
	return &fakeMemeStore{memes: make(map[int32]*domain.MemeWithTranslations)}
}

func (f *fakeMemeStore) add(id int32, status domain.PublishStatus, title string) *domain.MemeWithTranslations {
	meme := &domain.MemeWithTranslations{
		Meme: domain.Meme{
			ID:            id,
			Slug:          fmt.Sprintf("meme-%d", id),
			PublishStatus: status,
			MediaType:     domain.MediaTypePhoto,
			ThumbTgID:     fmt.Sprintf("thumb-%d", id),
		},
		Translations: []domain.Translation{
			{MemeID: id, Language: domain.ReferenceLanguage, Title: title},
		},
	}
	f.memes[id] = meme
	return meme
}

func (f *fakeMemeStore) GetByID(ctx context.Context, id int32) (*domain.Meme, error) {
	meme, ok := f.memes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &meme.Meme, nil
}

func (f *fakeMemeStore) ListPublishedByIDs(ctx context.Context, ids []int32) ([]domain.Meme, error) {
	var result []domain.Meme
	seen := make(map[int32]struct{})
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if meme, ok := f.memes[id]; ok && meme.Meme.IsPublished() {
			result = append(result, meme.Meme)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (f *fakeMemeStore) ListAllWithTranslations(ctx context.Context) ([]domain.MemeWithTranslations, error) {
	ids := make([]int32, 0, len(f.memes))
	for id := range f.memes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	result := make([]domain.MemeWithTranslations, 0, len(ids))
	for _, id := range ids {
		result = append(result, *f.memes[id])
	}
	return result, nil
}

// fakeUsageStore records calls and serves canned recent/popular lists.
type fakeUsageStore struct {
	nextID  int64
	logs    map[int64]*domain.SearchLog
	recent  []int32
	popular []int32
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{logs: make(map[int64]*domain.SearchLog)}
}

func (f *fakeUsageStore) CreateSearchLog(ctx context.Context, userID int64, query *string) (int64, error) {
	f.nextID++
	f.logs[f.nextID] = &domain.SearchLog{ID: f.nextID, UserID: userID, Query: query}
	return f.nextID, nil
}

func (f *fakeUsageStore) SaveChosen(ctx context.Context, searchID int64, memeID int32, source string) error {
	log, ok := f.logs[searchID]
	if !ok {
		return repository.ErrNotFound
	}
	log.ChosenMemeID = &memeID
	log.ChosenSource = &source
	return nil
}

func (f *fakeUsageStore) RecentChosenIDs(ctx context.Context, userID int64, limit int) ([]int32, error) {
	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func (f *fakeUsageStore) PopularIDs(ctx context.Context, window time.Duration, limit int) ([]int32, error) {
	if len(f.popular) > limit {
		return f.popular[:limit], nil
	}
	return f.popular, nil
}

// fakeThumbs serves thumbnail bytes derived from the file ID.
type fakeThumbs struct{}

func (fakeThumbs) ThumbnailBytes(ctx context.Context, meme *domain.Meme) ([]byte, error) {
	return []byte(meme.ThumbTgID), nil
}
