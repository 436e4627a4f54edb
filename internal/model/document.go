// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Document 定义了 documents 表的 ORM 模型。
// 文档一经写入即不再修改，重新处理只会替换其下的分块。
type Document struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   uint      `gorm:"not null;index" json:"ownerId"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	FileMD5   string    `gorm:"type:varchar(32);index" json:"fileMd5"`
	ObjectKey string    `gorm:"type:varchar(512)" json:"objectKey"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentDTO 是返回给前端的文档列表项。
type DocumentDTO struct {
	ID         uint      `json:"id"`
	Name       string    `json:"name"`
	UploadedAt LocalTime `json:"uploadedAt"`
}
