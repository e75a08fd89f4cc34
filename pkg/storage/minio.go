// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
// 对象存储仅用于归档上传的原始文件，不参与会话状态。
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"studymate-go/internal/config"
	"studymate-go/pkg/log"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

var bucketName string

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
// Endpoint 未配置时不应调用本函数。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}
	bucketName = cfg.BucketName

	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	ctx := context.Background()
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		if err := MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// ArchiveUpload 将一次上传的原始字节归档到 uploads/<md5>/<filename>。
// 归档失败只影响审计，不影响入库流程，由调用方决定是否忽略。
func ArchiveUpload(ctx context.Context, fileMD5, fileName string, data []byte) error {
	if MinioClient == nil {
		return nil
	}
	objectName := fmt.Sprintf("uploads/%s/%s", fileMD5, fileName)
	_, err := MinioClient.PutObject(ctx, bucketName, objectName,
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("归档文件到 MinIO 失败: %w", err)
	}
	log.Infof("[Storage] 原始文件已归档, object: %s, size: %d", objectName, len(data))
	return nil
}
