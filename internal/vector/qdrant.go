package vector

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Payload fields reserved for chunk bookkeeping; everything else is caller
// metadata and round-trips into SearchResult.Metadata.
const (
	fieldContent    = "content"
	fieldDocID      = "doc_id"
	fieldChunkIndex = "chunk_index"
)

// QdrantRepository implements Repository using Qdrant over gRPC.
type QdrantRepository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// NewQdrant creates a Qdrant-backed repository.
func NewQdrant(ctx context.Context, host string, port int) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantRepository{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func (r *QdrantRepository) EnsureCollection(ctx context.Context, name string, vectorSize int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: name,
	})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(vectorSize),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", name, err)
	}
	return nil
}

func (r *QdrantRepository) Upsert(ctx context.Context, collection string, docs []Document) error {
	points := make([]*pb.PointStruct, len(docs))
	for i, d := range docs {
		payload := map[string]*pb.Value{
			fieldContent:    {Kind: &pb.Value_StringValue{StringValue: d.Content}},
			fieldDocID:      {Kind: &pb.Value_StringValue{StringValue: d.DocID}},
			fieldChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(d.ChunkIndex)}},
		}
		for k, v := range d.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: d.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: d.Vector}}},
			Payload: payload,
		}
	}

	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (r *QdrantRepository) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: q.Collection,
		Vector:         q.Vector,
		Limit:          uint64(q.TopK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if q.ScoreThreshold > 0 {
		threshold := float32(q.ScoreThreshold)
		req.ScoreThreshold = &threshold
	}
	if len(q.Filters) > 0 {
		req.Filter = buildFilter(q.Filters)
	}

	resp, err := r.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]SearchResult, len(resp.Result))
	for i, pt := range resp.Result {
		res := SearchResult{
			ID:       pt.Id.GetUuid(),
			Score:    float64(pt.Score),
			Metadata: make(map[string]string),
		}
		for k, v := range pt.Payload {
			switch k {
			case fieldContent:
				res.Content = v.GetStringValue()
			case fieldDocID:
				res.DocID = v.GetStringValue()
			case fieldChunkIndex:
				res.ChunkIndex = int(v.GetIntegerValue())
			default:
				res.Metadata[k] = v.GetStringValue()
			}
		}
		results[i] = res
	}
	return results, nil
}

func buildFilter(filters map[string]string) *pb.Filter {
	conditions := make([]*pb.Condition, 0, len(filters))
	for k, v := range filters {
		conditions = append(conditions, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{
				Field: &pb.FieldCondition{
					Key:   k,
					Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &pb.Filter{Must: conditions}
}

// Ping verifies connectivity to the Qdrant instance.
func (r *QdrantRepository) Ping(ctx context.Context) error {
	if _, err := pb.NewQdrantClient(r.conn).HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

var _ Repository = (*QdrantRepository)(nil)
