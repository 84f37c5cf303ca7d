package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memexpert/memexpert/internal/domain"
	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/repository"
)

// MemeStore is the document-store subset the query engine hydrates
// results from.
type MemeStore interface {
	GetByID(ctx context.Context, id int32) (*domain.Meme, error)
	ListPublishedByIDs(ctx context.Context, ids []int32) ([]domain.Meme, error)
}

// UsageStore records search activity and derives the recent/popular
// fallback rankings.
type UsageStore interface {
	CreateSearchLog(ctx context.Context, userID int64, query *string) (int64, error)
	SaveChosen(ctx context.Context, searchID int64, memeID int32, source string) error
	RecentChosenIDs(ctx context.Context, userID int64, limit int) ([]int32, error)
	PopularIDs(ctx context.Context, window time.Duration, limit int) ([]int32, error)
}

// PopularCache is an optional short-TTL cache of the computed popular
// ID list, shared across users. A nil slice means miss.
type PopularCache interface {
	Get(ctx context.Context) ([]int32, error)
	Set(ctx context.Context, ids []int32) error
}

// SearchConfig holds configuration for the search service.
type SearchConfig struct {
	TextSpace          string
	ImageSpace         string
	TextPrefetchLimit  int
	ImagePrefetchLimit int
	PageSize           int
	RRFK               int
	DuplicateThreshold float32
	PopularWindow      time.Duration
}

// SearchResult is one ranked hit: the meme, its fused score, and a
// provenance tag telling which ranking source produced it.
type SearchResult struct {
	Meme   domain.Meme `json:"meme"`
	Score  float64     `json:"score"`
	Source string      `json:"source"`
}

// SearchResponse carries the ranked page and the search log ID the
// caller must echo back when the user picks a result.
type SearchResponse struct {
	SearchID int64          `json:"search_id"`
	Results  []SearchResult `json:"results"`
}

// SearchService resolves a free-text query to a ranked, deduplicated,
// publish-filtered page of memes, or a recent/popular fallback when the
// query is empty.
type SearchService struct {
	memes   MemeStore
	usage   UsageStore
	index   VectorIndex
	embed   EmbeddingProvider
	popular PopularCache // optional
	logger  *logger.Logger
	cfg     SearchConfig
}

// NewSearchService creates a new search service.
// Parameters:
//   - memes: document store for hydration.
//   - usage: search log and fallback-ranking store.
//   - index: vector index for candidate retrieval.
//   - embed: embedding provider for query vectors.
//   - popular: optional cache for the popular ID list; may be nil.
//   - log: logger instance.
//   - cfg: search configuration settings.
// Returns:
//   - *SearchService: initialized search service.
func NewSearchService(
	memes MemeStore,
	usage UsageStore,
	index VectorIndex,
	embed EmbeddingProvider,
	popular PopularCache,
	log *logger.Logger,
	cfg SearchConfig,
) *SearchService {
	return &SearchService{
		memes:   memes,
		usage:   usage,
		index:   index,
		embed:   embed,
		popular: popular,
		logger:  log,
		cfg:     cfg,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *SearchService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Search runs one search request. Every call, empty query included,
// first appends a search log row; its ID is returned so a later
// "user chose result X" event can be correlated back.
//
// An empty query returns the fallback mix: the user's recently chosen
// memes first, then globally popular ones, deduplicated and truncated
// to the page size. A non-empty query embeds the text into both vector
// spaces concurrently, prefetches candidates per space, fuses the two
// ranked lists with RRF, and hydrates the survivors against the store
// with a published-only filter as a backstop against index staleness.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: requesting user, recorded in the search log.
//   - query: raw query text; whitespace-only counts as empty.
// Returns:
//   - *SearchResponse: search log ID plus the ranked page.
//   - error: non-nil if logging, embedding, retrieval, or hydration
//     fails. There is no partial-result fallback.
func (s *SearchService) Search(ctx context.Context, userID int64, query string) (*SearchResponse, error) {
	searchID, err := s.usage.CreateSearchLog(ctx, userID, &query)
	if err != nil {
		return nil, fmt.Errorf("failed to log search: %w", err)
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldSearchID: searchID,
		logger.FieldUserID:   userID,
	})

	var results []SearchResult
	if strings.TrimSpace(query) == "" {
		results, err = s.fallbackResults(ctx, userID)
	} else {
		results, err = s.queryResults(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	s.log(ctx).WithField("results", len(results)).Debug("Search completed")
	return &SearchResponse{SearchID: searchID, Results: results}, nil
}

// queryResults runs the dense retrieval path for a non-empty query.
func (s *SearchService) queryResults(ctx context.Context, query string) ([]SearchResult, error) {
	// Two embeddings of the same string: one against the text space
	// with the query-side encoder, one cross-modal against the image
	// space. Both must succeed.
	var textVector, imageVector []float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		textVector, err = s.embed.EmbedText(gctx, query, EmbedPurposeQuery)
		if err != nil {
			return fmt.Errorf("failed to embed query text: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		imageVector, err = s.embed.EmbedText(gctx, query, EmbedPurposeCrossModal)
		if err != nil {
			return fmt.Errorf("failed to embed cross-modal query: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	textHits, err := s.index.QueryNearest(ctx, s.cfg.TextSpace, textVector, s.cfg.TextPrefetchLimit, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search text space: %w", err)
	}
	imageHits, err := s.index.QueryNearest(ctx, s.cfg.ImageSpace, imageVector, s.cfg.ImagePrefetchLimit, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search image space: %w", err)
	}

	fused := FuseRRF([][]int32{hitIDs(textHits), hitIDs(imageHits)}, s.cfg.RRFK)
	if len(fused) > s.cfg.PageSize {
		fused = fused[:s.cfg.PageSize]
	}
	return s.hydrateFused(ctx, fused)
}

// hydrateFused resolves fused hits against the store in one bulk
// lookup, drops IDs that no longer resolve to a published meme, and
// tags the survivors as query results. Fused order is preserved; the
// store returns rows ascending by ID, re-associated by binary search.
func (s *SearchService) hydrateFused(ctx context.Context, fused []FusedHit) ([]SearchResult, error) {
	if len(fused) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]int32, len(fused))
	for i, hit := range fused {
		ids[i] = hit.ID
	}
	memes, err := s.memes.ListPublishedByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate results: %w", err)
	}

	results := make([]SearchResult, 0, len(fused))
	for _, hit := range fused {
		meme, ok := findMemeByID(memes, hit.ID)
		if !ok {
			// Stale point: the index still references a meme that is
			// gone or no longer published.
			s.log(ctx).WithField(logger.FieldMemeID, hit.ID).Debug("Dropping stale index hit")
			continue
		}
		results = append(results, SearchResult{
			Meme:   *meme,
			Score:  hit.Score,
			Source: domain.SourceQuery,
		})
	}
	return results, nil
}

// fallbackResults builds the empty-query page: the user's recent
// choices first, then the popular list, deduplicated by meme ID.
func (s *SearchService) fallbackResults(ctx context.Context, userID int64) ([]SearchResult, error) {
	recentIDs, err := s.usage.RecentChosenIDs(ctx, userID, s.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent memes: %w", err)
	}
	popularIDs, err := s.popularIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get popular memes: %w", err)
	}

	type taggedID struct {
		id     int32
		source string
	}
	ordered := make([]taggedID, 0, len(recentIDs)+len(popularIDs))
	seen := make(map[int32]struct{}, len(recentIDs)+len(popularIDs))
	appendIDs := func(ids []int32, source string) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ordered = append(ordered, taggedID{id: id, source: source})
		}
	}
	appendIDs(recentIDs, domain.SourceRecent)
	appendIDs(popularIDs, domain.SourcePopular)
	if len(ordered) > s.cfg.PageSize {
		ordered = ordered[:s.cfg.PageSize]
	}
	if len(ordered) == 0 {
		return []SearchResult{}, nil
	}

	ids := make([]int32, len(ordered))
	for i, t := range ordered {
		ids[i] = t.id
	}
	memes, err := s.memes.ListPublishedByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate fallback results: %w", err)
	}

	results := make([]SearchResult, 0, len(ordered))
	for _, t := range ordered {
		meme, ok := findMemeByID(memes, t.id)
		if !ok {
			continue
		}
		results = append(results, SearchResult{Meme: *meme, Source: t.source})
	}
	return results, nil
}

// popularIDs returns the popular ranking, served from the cache when
// one is configured and warm.
func (s *SearchService) popularIDs(ctx context.Context) ([]int32, error) {
	if s.popular != nil {
		if ids, err := s.popular.Get(ctx); err != nil {
			s.log(ctx).WithError(err).Warn("Popular cache read failed")
		} else if ids != nil {
			return ids, nil
		}
	}

	ids, err := s.usage.PopularIDs(ctx, s.cfg.PopularWindow, s.cfg.PageSize)
	if err != nil {
		return nil, err
	}

	if s.popular != nil {
		if err := s.popular.Set(ctx, ids); err != nil {
			s.log(ctx).WithError(err).Warn("Popular cache write failed")
		}
	}
	return ids, nil
}

// Similar returns published memes ranked by closeness to the given
// meme, fusing both vector spaces using the meme's own stored vectors
// as queries. The meme itself never appears in the result.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - memeID: reference meme; must be indexed.
//   - limit: maximum number of results.
// Returns:
//   - []SearchResult: similar memes tagged as query results.
//   - error: non-nil if retrieval or hydration fails.
func (s *SearchService) Similar(ctx context.Context, memeID int32, limit int) ([]SearchResult, error) {
	textHits, err := s.index.QueryNearestByID(ctx, s.cfg.TextSpace, memeID, s.cfg.TextPrefetchLimit, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search text space: %w", err)
	}
	imageHits, err := s.index.QueryNearestByID(ctx, s.cfg.ImageSpace, memeID, s.cfg.ImagePrefetchLimit, true)
	if err != nil {
		return nil, fmt.Errorf("failed to search image space: %w", err)
	}

	fused := FuseRRF([][]int32{hitIDs(textHits), hitIDs(imageHits)}, s.cfg.RRFK)
	filtered := fused[:0]
	for _, hit := range fused {
		if hit.ID != memeID {
			filtered = append(filtered, hit)
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return s.hydrateFused(ctx, filtered)
}

// FindNearDuplicate checks whether an image embedding is nearly
// identical to any already-indexed meme. Drafts count too, so a
// creator is warned before inserting a duplicate of unreviewed content.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - imageVector: normalized image embedding of the candidate media.
// Returns:
//   - *domain.Meme: closest match when its similarity meets the
//     configured threshold, nil otherwise.
//   - error: non-nil if the index query or the meme lookup fails.
func (s *SearchService) FindNearDuplicate(ctx context.Context, imageVector []float32) (*domain.Meme, error) {
	hits, err := s.index.QueryNearest(ctx, s.cfg.ImageSpace, imageVector, 1, false)
	if err != nil {
		return nil, fmt.Errorf("failed to search for duplicates: %w", err)
	}
	if len(hits) == 0 || hits[0].Score < s.cfg.DuplicateThreshold {
		return nil, nil
	}

	meme, err := s.memes.GetByID(ctx, hits[0].ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load duplicate candidate %d: %w", hits[0].ID, err)
	}
	s.log(ctx).WithFields(logger.Fields{
		logger.FieldMemeID: meme.ID,
		"score":            hits[0].Score,
	}).Info("Near-duplicate detected")
	return meme, nil
}

// SaveChosen records which result the user picked and its provenance.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - searchID: search log ID returned by Search.
//   - memeID: chosen meme.
//   - source: provenance tag attached to the result the user picked.
// Returns:
//   - error: non-nil if the tag is unknown or the update fails.
func (s *SearchService) SaveChosen(ctx context.Context, searchID int64, memeID int32, source string) error {
	switch source {
	case domain.SourceRecent, domain.SourcePopular, domain.SourceQuery:
	default:
		return fmt.Errorf("unknown result source %q", source)
	}
	if err := s.usage.SaveChosen(ctx, searchID, memeID, source); err != nil {
		return fmt.Errorf("failed to save chosen result: %w", err)
	}
	return nil
}

func hitIDs(hits []repository.ScoredPoint) []int32 {
	ids := make([]int32, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
	}
	return ids
}

// findMemeByID locates a meme in a slice sorted ascending by ID.
func findMemeByID(memes []domain.Meme, id int32) (*domain.Meme, bool) {
	i := sort.Search(len(memes), func(i int) bool { return memes[i].ID >= id })
	if i < len(memes) && memes[i].ID == id {
		return &memes[i], true
	}
	return nil, false
}
