// Package es 提供了与 Elasticsearch 交互的客户端功能，用于段落关键词检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pdf-faq-go/internal/config"
	"pdf-faq-go/internal/model"
	"pdf-faq-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// PassageIndex 封装了段落镜像索引的读写。
type PassageIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// InitES 初始化 Elasticsearch 客户端并确保段落索引存在
func InitES(esCfg config.ElasticsearchConfig) (*PassageIndex, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &PassageIndex{client: client, indexName: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (p *PassageIndex) createIndexIfNotExists() error {
	res, err := p.client.Indices.Exists([]string{p.indexName})
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", p.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 文档以德语为主，使用内置的 german 分析器
	mapping := `{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "long" },
				"document_id": { "type": "long" },
				"document_name": { "type": "keyword" },
				"owner_id": { "type": "long" },
				"page_number": { "type": "integer" },
				"text": { "type": "text", "analyzer": "german" }
			}
		}
	}`
	res, err = p.client.Indices.Create(
		p.indexName,
		p.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", p.indexName, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", p.indexName, res.String())
	}
	log.Infof("索引 '%s' 创建成功", p.indexName)
	return nil
}

// IndexPassages 使用 bulk 接口批量写入段落，文档 id 为 chunk id。
func (p *PassageIndex) IndexPassages(ctx context.Context, passages []model.PassageDocument) error {
	if len(passages) == 0 {
		return nil
	}
	var body bytes.Buffer
	for _, passage := range passages {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": p.indexName, "_id": strconv.FormatUint(uint64(passage.ChunkID), 10)},
		}
		if err := json.NewEncoder(&body).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&body).Encode(passage); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{Body: &body, Refresh: "true"}
	res, err := req.Do(ctx, p.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk 写入段落失败: %s", res.String())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("解析 bulk 响应失败: %w", err)
	}
	if bulkResp.Errors {
		return errors.New("bulk 写入部分段落失败")
	}
	return nil
}

// DeleteDocument 删除某个文档的全部段落。
func (p *PassageIndex) DeleteDocument(ctx context.Context, documentID uint) error {
	query := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	res, err := p.client.DeleteByQuery(
		[]string{p.indexName},
		strings.NewReader(query),
		p.client.DeleteByQuery.WithContext(ctx),
		p.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("删除文档 %d 的段落失败: %s", documentID, res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64               `json:"_score"`
			Source model.PassageDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 在用户自己的段落中做全文检索。
func (p *PassageIndex) Search(ctx context.Context, ownerID uint, query string, size int) ([]model.PassageHit, error) {
	esQuery := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{"text": query},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"owner_id": ownerID},
				},
			},
		},
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := p.client.Search(
		p.client.Search.WithContext(ctx),
		p.client.Search.WithIndex(p.indexName),
		p.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s %s", res.Status(), string(body))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	hits := make([]model.PassageHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, model.PassageHit{
			ChunkID:      h.Source.ChunkID,
			DocumentID:   h.Source.DocumentID,
			DocumentName: h.Source.DocumentName,
			PageNumber:   h.Source.PageNumber,
			Text:         h.Source.Text,
			Score:        h.Score,
		})
	}
	return hits, nil
}
