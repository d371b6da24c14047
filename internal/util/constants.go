package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

const (
	MimeImage = "image/"
)

const PaginationHeader = "Pagination"

const MaxPhotoSize = 10 << 20
