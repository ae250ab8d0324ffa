package chunks

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Name is the blob name a chunk server stores chunkID of filename under:
// <basename>_<chunkID><ext>.
func Name(filename string, chunkID int) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	return fmt.Sprintf("%s_%d%s", base, chunkID, ext)
}

// Splitter cuts a stream into consecutive chunks of at most size bytes.
type Splitter struct {
	r    io.Reader
	size int64
	next int
}

func NewSplitter(r io.Reader, size int64) *Splitter {
	return &Splitter{r: r, size: size}
}

// Next returns the next chunk id and its bytes, or io.EOF once the stream is drained.
func (s *Splitter) Next() (int, []byte, error) {
	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == io.EOF:
		return 0, nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		// short last chunk
	case err != nil:
		return 0, nil, err
	}
	id := s.next
	s.next++
	return id, buf[:n], nil
}
