package storage

import "time"

// UploadedFile records a blob that reached the storage vendor. The
// digest/size pair provides durable dedup across processes; the in-memory TTL
// cache only short-circuits repeated uploads within one process.
type UploadedFile struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Digest      string    `gorm:"column:digest;size:64;not null;uniqueIndex:idx_uploaded_files_digest_size,priority:1"`
	SizeBytes   int64     `gorm:"column:size_bytes;not null;uniqueIndex:idx_uploaded_files_digest_size,priority:2"`
	ContentType string    `gorm:"column:content_type;size:190;not null"`
	FileName    string    `gorm:"column:file_name;size:320;not null"`
	StorageKey  string    `gorm:"column:storage_key;size:320;not null"`
	PublicURL   string    `gorm:"column:public_url;size:512;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (UploadedFile) TableName() string {
	return "uploaded_files"
}
