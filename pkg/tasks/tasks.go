// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIngestTask represents a document waiting to be extracted, chunked and embedded.
type DocumentIngestTask struct {
	DocumentID uint   `json:"document_id"`
	OwnerID    uint   `json:"owner_id"`
	FileName   string `json:"file_name"`
	ObjectKey  string `json:"object_key"`
}
