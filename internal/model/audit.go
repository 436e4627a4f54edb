package model

import "time"

// Query 记录用户提出的问题，仅用于审计。
type Query struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   uint      `gorm:"not null;index" json:"ownerId"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Query) TableName() string {
	return "queries"
}

// Response 记录针对某个 Query 生成的答案及来源。
type Response struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryID    uint      `gorm:"not null;index" json:"queryId"`
	Answer     string    `gorm:"type:text;not null" json:"answer"`
	SourceName *string   `gorm:"type:varchar(255)" json:"sourceName"`
	SourcePage *int      `json:"sourcePage"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Response) TableName() string {
	return "responses"
}

// ErrorLog 记录处理过程中被吞掉的异常。
type ErrorLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Trace     *string   `gorm:"type:mediumtext" json:"trace"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (ErrorLog) TableName() string {
	return "error_logs"
}
