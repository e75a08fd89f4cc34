package model

import "time"

// UploadRecord 定义了 upload_records 表的 ORM 模型。
// 它是一份可选的入库审计日志，不作为会话状态的数据源：
// 会话的权威状态始终在内存中，进程重启即清空。
type UploadRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(64);not null;index" json:"sessionId"`
	FileMD5   string    `gorm:"type:varchar(32);not null" json:"fileMd5"`
	FileName  string    `gorm:"type:varchar(255);not null" json:"fileName"`
	TotalSize int64     `gorm:"not null" json:"totalSize"`
	Chunks    int       `gorm:"not null" json:"chunks"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (UploadRecord) TableName() string {
	return "upload_records"
}
