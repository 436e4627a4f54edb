package model

// Chunk 对应于数据库中的 chunks 表。
// SequenceIndex 是文档内从 0 开始的顺序号，PageNumber 为空表示来源没有分页信息。
type Chunk struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DocumentID    uint   `gorm:"not null;index" json:"documentId"`
	Text          string `gorm:"type:mediumtext;not null" json:"text"`
	SequenceIndex int    `gorm:"not null" json:"sequenceIndex"`
	PageNumber    *int   `json:"pageNumber"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// RelevantChunk 是检索结果：分块内容加上所属文档名，用于答案溯源。
type RelevantChunk struct {
	ChunkID      uint   `json:"chunkId"`
	DocumentID   uint   `json:"documentId"`
	DocumentName string `json:"documentName"`
	Text         string `json:"text"`
	PageNumber   *int   `json:"pageNumber"`
}
