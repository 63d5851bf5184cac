package vectordb

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/merchantry/askdb/config"
	"github.com/merchantry/askdb/embedding"
	"github.com/merchantry/askdb/schema"
)

const (
	milvusFieldID      = "id"
	milvusFieldContent = "content"
	milvusFieldVector  = "vector"

	milvusMaxContentLength = 4096
	milvusEfConstruction   = 64
	milvusHNSWM            = 8
	milvusEfSearch         = 64
)

// Milvus stores embedded documents in a Milvus collection with an HNSW
// index under the inner-product metric.
type Milvus struct {
	client     client.Client
	embedder   embedding.Provider
	collection string
}

// NewMilvus connects to Milvus and ensures the collection exists.
func NewMilvus(ctx context.Context, cfg config.VectorDBConfig, embedder embedding.Provider) (*Milvus, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, schema.NewCollaboratorError("vectordb", err)
	}

	m := &Milvus{client: c, embedder: embedder, collection: cfg.Collection}
	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Milvus) ensureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}
	if has {
		return nil
	}

	sch := entity.NewSchema().
		WithName(m.collection).
		WithField(entity.NewField().
			WithName(milvusFieldID).
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true)).
		WithField(entity.NewField().
			WithName(milvusFieldContent).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(milvusMaxContentLength)).
		WithField(entity.NewField().
			WithName(milvusFieldVector).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(m.embedder.Dimensions())))

	if err := m.client.CreateCollection(ctx, sch, entity.DefaultShardNumber); err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}

	idx, err := entity.NewIndexHNSW(entity.IP, milvusHNSWM, milvusEfConstruction)
	if err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}
	if err := m.client.CreateIndex(ctx, m.collection, milvusFieldVector, idx, false); err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}
	return nil
}

// Build embeds docs and inserts them into the collection.
func (m *Milvus) Build(ctx context.Context, docs []string) error {
	if len(docs) == 0 {
		return nil
	}

	vectors, err := m.embedder.Embed(ctx, docs)
	if err != nil {
		return err
	}

	contentCol := entity.NewColumnVarChar(milvusFieldContent, docs)
	vectorCol := entity.NewColumnFloatVector(milvusFieldVector, m.embedder.Dimensions(), vectors)

	if _, err := m.client.Insert(ctx, m.collection, "", contentCol, vectorCol); err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}
	if err := m.client.Flush(ctx, m.collection, false); err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}
	if err := m.client.LoadCollection(ctx, m.collection, false); err != nil {
		return schema.NewCollaboratorError("vectordb", err)
	}
	return nil
}

// Search embeds query and returns the topK nearest documents.
func (m *Milvus) Search(ctx context.Context, query string, topK int) ([]schema.SearchResult, error) {
	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(milvusEfSearch)
	if err != nil {
		return nil, schema.NewCollaboratorError("vectordb", err)
	}

	resultSets, err := m.client.Search(ctx, m.collection, nil, "",
		[]string{milvusFieldContent},
		[]entity.Vector{entity.FloatVector(vectors[0])},
		milvusFieldVector, entity.IP, topK, sp)
	if err != nil {
		return nil, schema.NewCollaboratorError("vectordb", err)
	}

	var results []schema.SearchResult
	for _, rs := range resultSets {
		col := rs.Fields.GetColumn(milvusFieldContent)
		if col == nil {
			continue
		}
		for i := 0; i < rs.ResultCount; i++ {
			text, err := col.GetAsString(i)
			if err != nil {
				return nil, schema.NewCollaboratorError("vectordb", err)
			}
			results = append(results, schema.SearchResult{
				Text:     text,
				Distance: float64(rs.Scores[i]),
			})
		}
	}
	return results, nil
}

// Close releases the Milvus connection.
func (m *Milvus) Close() error {
	return m.client.Close()
}
