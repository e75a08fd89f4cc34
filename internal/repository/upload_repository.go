package repository

import (
	"studymate-go/internal/model"
	"studymate-go/pkg/database"
)

// UploadRepository 定义了上传审计记录的持久化接口。
// 审计记录只进不出，MySQL 未配置时所有方法都是空操作。
type UploadRepository interface {
	Create(record *model.UploadRecord) error
}

type uploadRepository struct{}

// NewUploadRepository 创建一个上传审计仓库实例。
func NewUploadRepository() UploadRepository {
	return &uploadRepository{}
}

// Create 插入一条上传审计记录。
func (r *uploadRepository) Create(record *model.UploadRecord) error {
	if database.DB == nil {
		return nil
	}
	return database.DB.Create(record).Error
}
