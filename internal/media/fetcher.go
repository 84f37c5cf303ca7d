package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/memexpert/memexpert/internal/logger"
	"github.com/memexpert/memexpert/internal/repository"
)

// FileCacheStore is the write-once byte cache backing the fetcher.
type FileCacheStore interface {
	Get(ctx context.Context, fileID string) ([]byte, error)
	Put(ctx context.Context, fileID string, data []byte) error
}

// FetcherConfig holds configuration for the media host client.
type FetcherConfig struct {
	BaseURL string // file host API base, e.g. https://api.telegram.org
	Token   string
}

// Fetcher downloads media bytes from the file host, caching every file
// in the database so a file ID is fetched over the network at most once.
type Fetcher struct {
	client  *resty.Client
	baseURL string
	token   string
	cache   FileCacheStore
	logger  *logger.Logger
}

// NewFetcher creates a new Fetcher.
func NewFetcher(cfg *FetcherConfig, cache FileCacheStore, log *logger.Logger) *Fetcher {
	return &Fetcher{
		client:  resty.New(),
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		cache:   cache,
		logger:  log,
	}
}

type getFileResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	Result      struct {
		FilePath string `json:"file_path"`
	} `json:"result"`
}

// FetchFile returns the raw bytes of a file, from cache when possible.
// A cache write failure is logged, not fatal; the bytes are already in
// hand.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fileID: file host identifier of the media.
// Returns:
//   - []byte: raw file bytes.
//   - error: non-nil if the host lookup or download fails.
func (f *Fetcher) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	data, err := f.cache.Get(ctx, fileID)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to read file cache: %w", err)
	}

	data, err = f.download(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if err := f.cache.Put(ctx, fileID, data); err != nil {
		logger.CtxWarn(ctx, "Failed to cache file %s: %v", fileID, err)
	}
	return data, nil
}

// download resolves the file path via the host API, then fetches the
// bytes.
func (f *Fetcher) download(ctx context.Context, fileID string) ([]byte, error) {
	var meta getFileResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"file_id": fileID}).
		SetResult(&meta).
		Post(fmt.Sprintf("%s/bot%s/getFile", f.baseURL, f.token))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", fileID, err)
	}
	if resp.StatusCode() != 200 || !meta.OK {
		return nil, fmt.Errorf("file host rejected file %s: status %d %s", fileID, resp.StatusCode(), meta.Description)
	}

	fileResp, err := f.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/file/bot%s/%s", f.baseURL, f.token, meta.Result.FilePath))
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	if fileResp.StatusCode() != 200 {
		return nil, fmt.Errorf("failed to download file %s: status %d", fileID, fileResp.StatusCode())
	}
	return fileResp.Body(), nil
}
