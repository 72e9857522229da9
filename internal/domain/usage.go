package domain

import "time"

type UsageLog struct {
	BatchID        string
	FilesWritten   int64
	FilesSkipped   int64
	FilesFailed    int64
	PixelsRendered int64
	ComputeTimeMS  int64
	CreatedAt      time.Time
}
