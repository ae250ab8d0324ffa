package models

// FileRecord is the master's view of a file. It never changes after init.
type FileRecord struct {
	Name       string
	Size       int64
	ChunkCount int
}

// ChunkAllocation maps a chunk id to the ordered chunk servers holding (or planned to hold) it.
type ChunkAllocation map[int][]string

/* =========== Init ===========*/

type InitRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

/* =========== Size ===========*/

type SizeResponse struct {
	Size int64 `json:"size"`
}

/* =========== Responses ===========*/

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Chunks []int  `json:"chunks,omitempty"`
}

// Error classes carried in ErrorResponse.Code.
const (
	CodeValidation        = "validation"
	CodeConflict          = "conflict"
	CodeNotFound          = "not_found"
	CodeResourceExhausted = "resource_exhausted"
)
