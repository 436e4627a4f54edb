package model

import "time"

// QARecord 代表存储在 Redis 中的一条问答历史。
type QARecord struct {
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	SourceDocument *string   `json:"sourceDocument"`
	SourcePage     *int      `json:"sourcePage"`
	RelevantChunks int       `json:"relevantChunks"`
	Timestamp      time.Time `json:"timestamp"`
}
