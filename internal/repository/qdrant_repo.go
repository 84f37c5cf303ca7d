package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/memexpert/memexpert/internal/domain"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const payloadKeyPublishStatus = "publish_status"

// QdrantConnectionConfig holds configuration for the Qdrant connection
// and the collection schema.
type QdrantConnectionConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS     bool   // Explicitly enable TLS without API Key

	VectorDimension int
	Distance        string   // "cosine" or "dot"
	Spaces          []string // named vector spaces, e.g. text and image
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// ScoredPoint is one vector search hit: a meme ID and its raw
// similarity score in the queried space.
type ScoredPoint struct {
	ID    int32
	Score float32
}

// QdrantRepository stores one point per meme with multiple named
// vector spaces. Point IDs are the meme's numeric database ID, so the
// index needs no reverse mapping.
type QdrantRepository struct {
	conn           *grpc.ClientConn
	pointsClient   pb.PointsClient
	collectClient  pb.CollectionsClient
	collectionName string

	vectorDimension uint64
	distance        pb.Distance
	spaces          []string
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	if cfg.VectorDimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", cfg.VectorDimension)
	}
	if len(cfg.Spaces) == 0 {
		return nil, fmt.Errorf("at least one vector space is required")
	}

	distance := pb.Distance_Cosine
	if cfg.Distance == "dot" {
		distance = pb.Distance_Dot
	}

	// Build gRPC dial options. TLS is enabled if APIKey is set OR
	// UseTLS is explicitly true.
	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: uint64(cfg.VectorDimension),
		distance:        distance,
		spaces:          cfg.Spaces,
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist. An
// existing collection with a mismatched vector size is an error, not
// something to silently reuse.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err != nil {
		// Only a NotFound means the collection is absent; anything else
		// (unavailable, deadline, auth) must not trigger a create.
		if status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to inspect collection %s: %w", r.collectionName, err)
		}
		return r.createCollection(ctx)
	}

	if size, ok := collectionVectorSize(info.GetResult()); ok {
		if size != r.vectorDimension {
			return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
		}
	}
	return nil
}

// RecreateCollection drops and recreates the collection. Used by full
// reindex runs to start from an empty index.
func (r *QdrantRepository) RecreateCollection(ctx context.Context) error {
	// Delete is idempotent: deleting a missing collection succeeds.
	if _, err := r.collectClient.Delete(ctx, &pb.DeleteCollection{
		CollectionName: r.collectionName,
	}); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return r.createCollection(ctx)
}

func (r *QdrantRepository) createCollection(ctx context.Context) error {
	paramsMap := make(map[string]*pb.VectorParams, len(r.spaces))
	for _, space := range r.spaces {
		paramsMap[space] = &pb.VectorParams{
			Size:     r.vectorDimension,
			Distance: r.distance,
		}
	}

	_, err := r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_ParamsMap{
				ParamsMap: &pb.VectorParamsMap{Map: paramsMap},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func optionalBool(v bool) *bool {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	if paramsMap := vectors.GetParamsMap(); paramsMap != nil {
		for _, vectorParams := range paramsMap.GetMap() {
			if vectorParams == nil {
				continue
			}
			if size := vectorParams.GetSize(); size > 0 {
				return size, true
			}
		}
	}

	return 0, false
}

func memePointID(memeID int32) *pb.PointId {
	return &pb.PointId{
		PointIdOptions: &pb.PointId_Num{Num: uint64(memeID)},
	}
}

func publishStatusFilter(status string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: payloadKeyPublishStatus,
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: status},
						},
					},
				},
			},
		},
	}
}

// Upsert writes the point for a meme with all of its named vectors in
// one call, waiting for the write to apply so a subsequent search sees
// it. The point carries the publish status as payload.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - memeID: meme whose point is written; becomes the point ID.
//   - vectors: vector per named space; all configured spaces must be
//     present so the point is never half-written.
//   - publishStatus: stored as payload for diagnostics.
// Returns:
//   - error: non-nil if any space is missing, mis-sized, or the write
//     fails.
func (r *QdrantRepository) Upsert(ctx context.Context, memeID int32, vectors map[string][]float32, publishStatus string) error {
	named := make(map[string]*pb.Vector, len(r.spaces))
	for _, space := range r.spaces {
		vec, ok := vectors[space]
		if !ok {
			return fmt.Errorf("missing vector for space %q", space)
		}
		if uint64(len(vec)) != r.vectorDimension {
			return fmt.Errorf("vector for space %q has %d dimensions, expected %d", space, len(vec), r.vectorDimension)
		}
		named[space] = &pb.Vector{Data: vec}
	}

	points := []*pb.PointStruct{
		{
			Id: memePointID(memeID),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vectors{
					Vectors: &pb.NamedVectors{Vectors: named},
				},
			},
			Payload: map[string]*pb.Value{
				payloadKeyPublishStatus: {Kind: &pb.Value_StringValue{StringValue: publishStatus}},
			},
		},
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
		Wait:           optionalBool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point %d: %w", memeID, err)
	}
	return nil
}

// Delete removes the point for a meme, waiting for the write to apply.
// Deleting an absent point succeeds.
func (r *QdrantRepository) Delete(ctx context.Context, memeID int32) error {
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{memePointID(memeID)},
				},
			},
		},
		Wait: optionalBool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to delete point %d: %w", memeID, err)
	}
	return nil
}

// PointExists reports whether the meme's point is present in the
// collection.
func (r *QdrantRepository) PointExists(ctx context.Context, memeID int32) (bool, error) {
	resp, err := r.pointsClient.Get(ctx, &pb.GetPoints{
		CollectionName: r.collectionName,
		Ids:            []*pb.PointId{memePointID(memeID)},
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		},
		WithVectors: &pb.WithVectorsSelector{
			SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to get point %d: %w", memeID, err)
	}
	return len(resp.GetResult()) > 0, nil
}

// ListPointIDs scrolls the entire collection and returns every point
// ID as a meme ID. Used by heal sweeps to find orphaned points.
func (r *QdrantRepository) ListPointIDs(ctx context.Context) ([]int32, error) {
	var ids []int32
	var offset *pb.PointId
	pageSize := uint32(1000)

	for {
		resp, err := r.pointsClient.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: r.collectionName,
			Limit:          &pageSize,
			Offset:         offset,
			WithPayload: &pb.WithPayloadSelector{
				SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
			},
			WithVectors: &pb.WithVectorsSelector{
				SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: false},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll points: %w", err)
		}
		for _, point := range resp.GetResult() {
			ids = append(ids, int32(point.GetId().GetNum()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	return ids, nil
}

// QueryNearest searches one named space with a raw query vector.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - space: named vector space to search.
//   - vector: query vector.
//   - limit: maximum number of hits.
//   - onlyPublished: restrict hits to points whose payload marks them
//     published. Near-duplicate checks pass false so drafts are found.
// Returns:
//   - []ScoredPoint: hits by descending similarity.
//   - error: non-nil if the search fails.
func (r *QdrantRepository) QueryNearest(ctx context.Context, space string, vector []float32, limit int, onlyPublished bool) ([]ScoredPoint, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		VectorName:     &space,
		Limit:          uint64(limit),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		},
	}
	if onlyPublished {
		req.Filter = publishStatusFilter(string(domain.PublishStatusPublished))
	}
	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search space %q: %w", space, err)
	}

	results := make([]ScoredPoint, len(resp.GetResult()))
	for i, scored := range resp.GetResult() {
		results[i] = ScoredPoint{
			ID:    int32(scored.GetId().GetNum()),
			Score: scored.GetScore(),
		}
	}
	return results, nil
}

// QueryNearestByID searches one named space using the stored vector of
// an existing point as the query. Qdrant excludes the reference point
// itself from the hits.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - space: named vector space to search.
//   - memeID: meme whose stored vector is the query.
//   - limit: maximum number of hits.
//   - onlyPublished: restrict hits to published points.
// Returns:
//   - []ScoredPoint: hits by descending similarity, reference excluded.
//   - error: non-nil if the point is missing or the search fails.
func (r *QdrantRepository) QueryNearestByID(ctx context.Context, space string, memeID int32, limit int, onlyPublished bool) ([]ScoredPoint, error) {
	limit64 := uint64(limit)
	req := &pb.QueryPoints{
		CollectionName: r.collectionName,
		Query: &pb.Query{
			Variant: &pb.Query_Nearest{
				Nearest: &pb.VectorInput{
					Variant: &pb.VectorInput_Id{Id: memePointID(memeID)},
				},
			},
		},
		Using: &space,
		Limit: &limit64,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: false},
		},
	}
	if onlyPublished {
		req.Filter = publishStatusFilter(string(domain.PublishStatusPublished))
	}
	resp, err := r.pointsClient.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query space %q by point %d: %w", space, memeID, err)
	}

	results := make([]ScoredPoint, len(resp.GetResult()))
	for i, scored := range resp.GetResult() {
		results[i] = ScoredPoint{
			ID:    int32(scored.GetId().GetNum()),
			Score: scored.GetScore(),
		}
	}
	return results, nil
}
