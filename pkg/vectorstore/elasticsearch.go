package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"studymate-go/internal/config"
	"studymate-go/internal/model"
	"studymate-go/pkg/log"
)

// esDocument 是存储在 Elasticsearch 中的分块结构。
type esDocument struct {
	VectorID    string    `json:"vector_id"` // 唯一标识，例如 fileMd5 + chunkId
	FileMD5     string    `json:"file_md5"`
	FileName    string    `json:"file_name"`
	ChunkID     int       `json:"chunk_id"`
	TextContent string    `json:"text_content"`
	StartOffset int       `json:"start_offset"`
	EndOffset   int       `json:"end_offset"`
	Vector      []float32 `json:"vector"`
}

// ESIndex 是基于 Elasticsearch dense_vector 的向量索引实现。
// 注意：外置后端无法保证同分条目严格按插入顺序排列，参考部署使用内存后端。
type ESIndex struct {
	client    *elasticsearch.Client
	indexName string
	dims      int
}

// NewESFactory 初始化共享的 Elasticsearch 客户端，并返回按会话命名索引的工厂。
func NewESFactory(cfg config.ElasticsearchConfig, dims int) (Factory, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	return func(sessionID string) (Index, error) {
		idx := &ESIndex{
			client:    client,
			indexName: fmt.Sprintf("%s-%s", cfg.IndexName, strings.ToLower(sessionID)),
			dims:      dims,
		}
		if err := idx.createIndexIfNotExists(); err != nil {
			return nil, err
		}
		return idx, nil
	}, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (s *ESIndex) createIndexIfNotExists() error {
	res, err := s.client.Indices.Exists([]string{s.indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"file_md5": { "type": "keyword" },
				"file_name": { "type": "keyword" },
				"chunk_id": { "type": "integer" },
				"text_content": { "type": "text" },
				"start_offset": { "type": "integer" },
				"end_offset": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dims)

	res, err = s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", s.indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", s.indexName)
	return nil
}

// Insert 将分块逐条索引到 Elasticsearch。
func (s *ESIndex) Insert(ctx context.Context, chunks []*model.Chunk) error {
	for _, c := range chunks {
		doc := esDocument{
			VectorID:    c.ChunkKey(),
			FileMD5:     c.FileMD5,
			FileName:    c.FileName,
			ChunkID:     c.Index,
			TextContent: c.Text,
			StartOffset: c.StartOffset,
			EndOffset:   c.EndOffset,
			Vector:      normalize(c.Embedding),
		}
		docBytes, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		req := esapi.IndexRequest{
			Index:      s.indexName,
			DocumentID: doc.VectorID,
			Body:       bytes.NewReader(docBytes),
			Refresh:    "true",
		}
		res, err := req.Do(ctx, s.client)
		if err != nil {
			return err
		}
		if res.IsError() {
			log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
			res.Body.Close()
			return errors.New("failed to index document")
		}
		res.Body.Close()
	}
	return nil
}

// Remove 删除指定文档的全部条目。
func (s *ESIndex) Remove(ctx context.Context, fileMD5 string) error {
	query := fmt.Sprintf(`{"query":{"term":{"file_md5":%q}}}`, fileMD5)
	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		strings.NewReader(query),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}

// Query 通过 knn 检索前 k 个分块。
func (s *ESIndex) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	q := normalize(vector)
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   q,
			"k":              k,
			"num_candidates": k * 10,
		},
		"size": k,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s", string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		chunk := &model.Chunk{
			FileMD5:     h.Source.FileMD5,
			FileName:    h.Source.FileName,
			Index:       h.Source.ChunkID,
			Text:        h.Source.TextContent,
			StartOffset: h.Source.StartOffset,
			EndOffset:   h.Source.EndOffset,
		}
		// ES 对 cosine 相似度的打分是 (1+cos)/2，换算回原始余弦值。
		hits = append(hits, Hit{Chunk: chunk, Score: h.Score*2 - 1})
	}
	return hits, nil
}

// Size 返回索引中的条目总数。
func (s *ESIndex) Size(ctx context.Context) (int, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.indexName),
	)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", res.String())
	}

	var countResp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&countResp); err != nil {
		return 0, err
	}
	return countResp.Count, nil
}

// Clear 清空索引中的全部条目（保留索引本身）。
func (s *ESIndex) Clear(ctx context.Context) error {
	res, err := s.client.DeleteByQuery(
		[]string{s.indexName},
		strings.NewReader(`{"query":{"match_all":{}}}`),
		s.client.DeleteByQuery.WithContext(ctx),
		s.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("clear failed: %s", res.String())
	}
	return nil
}
