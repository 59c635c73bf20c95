// Package chunk splits raw document text into overlapping passages sized for
// embedding, with stable content-derived identifiers so re-indexing the same
// document is idempotent.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// DefaultSize and DefaultOverlap match the embedding model's sweet spot
	// for passage retrieval.
	DefaultSize    = 512
	DefaultOverlap = 128

	// idContentPrefix is how many leading characters of chunk content
	// participate in the chunk ID digest.
	idContentPrefix = 50
)

// Chunk is a bounded slice of a document's text, the unit of indexing.
type Chunk struct {
	Content    string
	DocID      string
	ChunkIndex int
	Metadata   map[string]string
	ChunkID    string
}

// Chunker splits documents using a sliding character window.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. Size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split chunks content into overlapping passages. Windows that would cut a
// word in half are trimmed back to the last whitespace inside the window;
// consecutive chunks overlap by roughly the configured overlap (less at
// trimmed boundaries). Empty content is a validation failure, not an empty
// index.
func (c *Chunker) Split(content, docID string, metadata map[string]string) ([]Chunk, error) {
	if content == "" {
		return nil, fmt.Errorf("no content provided for chunking")
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + c.size
		if end > len(content) {
			end = len(content)
		} else if end < len(content) {
			// Avoid splitting mid-word: pull the window edge back to the
			// last whitespace. A window with no whitespace stays verbatim.
			window := content[start:end]
			if ws := strings.LastIndexAny(window, " \t\n\r"); ws > 0 {
				end = start + ws
			}
		}

		chunks = append(chunks, Chunk{
			Content:    strings.TrimSpace(content[start:end]),
			DocID:      docID,
			ChunkIndex: index,
			Metadata:   metadata,
			ChunkID:    chunkID(docID, index, strings.TrimSpace(content[start:end])),
		})
		index++

		next := end - c.overlap
		if next <= start {
			// Heavily trimmed window: skip the overlap rather than loop.
			next = end
		}
		start = next
	}

	return chunks, nil
}

// chunkID derives a stable identifier from the chunk's position and leading
// content, so identical input always produces identical IDs.
func chunkID(docID string, index int, content string) string {
	prefix := content
	if len(prefix) > idContentPrefix {
		prefix = prefix[:idContentPrefix]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", docID, index, prefix)))
	return hex.EncodeToString(sum[:])[:16]
}
