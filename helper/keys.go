package helper

import "fmt"

func FileSizeKey(filename string) string {
	return fmt.Sprintf("file:%s:size", filename)
}

func FileChunksKey(filename string) string {
	return fmt.Sprintf("file:%s:chunks", filename)
}

// ChunkServersKeyFor is the set of chunk servers that registered chunkID of filename.
func ChunkServersKeyFor(filename string, chunkID int) string {
	return fmt.Sprintf("file:%s:chunks:%d:chunk_servers", filename, chunkID)
}
