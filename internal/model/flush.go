package model

// FlushResult summarizes a single flush run. It is returned to the caller and
// logged; errors are carried in the Errors slice rather than raised, so callers
// must inspect the field themselves.
type FlushResult struct {
	FlushedCount int      `json:"flushed_count"`
	Duration     float64  `json:"duration"`
	Errors       []string `json:"errors"`
}

// CacheStats is a read-only diagnostic snapshot of the ephemeral store.
type CacheStats struct {
	UsedMemoryBytes int64  `json:"used_memory_bytes"`
	PendingMessages int64  `json:"pending_messages"`
	StoreInfo       string `json:"store_info,omitempty"`
}
