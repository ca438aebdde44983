package chunker

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/custodia-labs/ragctx/internal/core/domain"
)

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("ragctx/chunk"))

// ChunkID derives a UUIDv5 from the document, sequence and content hash.
// Re-chunking unchanged text yields the same ID, so stored embeddings are
// reused; different text always yields a different ID.
func ChunkID(documentID string, sequence int, content string) string {
	name := documentID + "\x00" + strconv.Itoa(sequence) + "\x00" + domain.ContentHash(content)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
