package model

// PassageDocument 定义了镜像到 Elasticsearch 中的段落结构。
type PassageDocument struct {
	ChunkID      uint   `json:"chunk_id"`
	DocumentID   uint   `json:"document_id"`
	DocumentName string `json:"document_name"`
	OwnerID      uint   `json:"owner_id"`
	PageNumber   *int   `json:"page_number,omitempty"`
	Text         string `json:"text"`
}

// PassageHit 是关键词段落检索返回给前端的结果。
type PassageHit struct {
	ChunkID      uint    `json:"chunkId"`
	DocumentID   uint    `json:"documentId"`
	DocumentName string  `json:"documentName"`
	PageNumber   *int    `json:"pageNumber"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
}
