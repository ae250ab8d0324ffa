package models

const (
	StatusAlive = "alive"
	StatusDead  = "dead"
)

// ChunkServerState reports one registered chunk server and whether membership considers it live.
type ChunkServerState struct {
	Node   string `json:"node"`
	Status string `json:"status"`
}

type ServersResponse struct {
	Servers []ChunkServerState `json:"servers"`
	// live nodes in rotation order
	Rotation []string `json:"rotation"`
}
