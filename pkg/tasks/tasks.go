// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIngestTask represents the data structure for a document ingestion job.
// ObjectName 是原始文件在 MinIO 中的对象名；按 FileMD5 幂等，整体重试安全。
type DocumentIngestTask struct {
	FileMD5    string `json:"file_md5"`
	FileName   string `json:"file_name"`
	ObjectName string `json:"object_name"`
	Domain     string `json:"domain"`
	UserID     uint   `json:"user_id"`
	Namespace  string `json:"namespace"` // 目标命名空间，空为默认
}
