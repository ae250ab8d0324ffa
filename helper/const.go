package helper

import (
	"time"
)

const (
	DEFAULT_MASTER_ADDR       = ":5000"
	DEFAULT_MASTER_URL        = "http://localhost:5000"
	DEFAULT_CHUNK_SERVER_ADDR = ":5000"
	DEFAULT_UPLOAD_FOLDER     = "/chunks"

	CHUNK_SERVER_BASE_NAME = "chunk_server_"
	CHUNK_SERVER_PORT      = 5000

	CHUNK_SIZE         = 1024 // 1KB
	REPLICATION_FACTOR = 2
	// number of consecutive chunks sent to the same chunk servers in one step of the round robin
	BATCH_CHUNK_SIZE = 10
	// 1GB files at the default chunk size
	MAX_CHUNKS = 1 << 20

	HEALTH_CHECK_INTERVAL = 10 * time.Second
	REPLICATION_INTERVAL  = 10 * time.Second
	RPC_TIMEOUT           = 2 * time.Second
	RPC_ATTEMPTS          = 2
	RPC_BACKOFF           = 100 * time.Millisecond

	// multipart field carrying chunk bytes on store
	CHUNK_FORM_FIELD = "file"
)

// Redis keys. Per-file keys are built with the helpers in keys.go.
const (
	ChunkServersKey       = "chunk_servers"
	HealthyServersSetKey  = "healthy_chunk_servers_set"
	HealthyServersListKey = "healthy_chunk_servers_list"
	FilesKey              = "files"
	PlacementCursorKey    = "placement_cursor"
)
