package domain

import "time"

// ChunkIndexState is the indexing sub-status of a single chunk.
type ChunkIndexState string

// Chunk indexing states.
const (
	ChunkPending ChunkIndexState = "pending"
	ChunkIndexed ChunkIndexState = "indexed"
	ChunkFailed  ChunkIndexState = "failed"
)

// IndexProgress tracks per-chunk indexing for one document generation.
// It is not safe for concurrent use; owners guard it with their own lock.
type IndexProgress struct {
	DocumentID string
	Generation int
	Chunks     map[string]ChunkIndexState
}

// NewIndexProgress returns a tracker with every chunk pending.
func NewIndexProgress(documentID string, generation int, chunkIDs []string) *IndexProgress {
	p := &IndexProgress{
		DocumentID: documentID,
		Generation: generation,
		Chunks:     make(map[string]ChunkIndexState, len(chunkIDs)),
	}
	for _, id := range chunkIDs {
		p.Chunks[id] = ChunkPending
	}
	return p
}

// Mark sets the state of a tracked chunk. Unknown chunk IDs are ignored.
func (p *IndexProgress) Mark(chunkID string, state ChunkIndexState) {
	if _, ok := p.Chunks[chunkID]; ok {
		p.Chunks[chunkID] = state
	}
}

// Counts returns the number of pending, indexed and failed chunks.
func (p *IndexProgress) Counts() (pending, indexed, failed int) {
	for _, s := range p.Chunks {
		switch s {
		case ChunkPending:
			pending++
		case ChunkIndexed:
			indexed++
		case ChunkFailed:
			failed++
		}
	}
	return pending, indexed, failed
}

// StatusReport is the pollable ingestion status of a document.
type StatusReport struct {
	DocumentID      string
	Status          DocumentStatus
	ProcessingError string
	Generation      int
	TotalChunks     int
	IndexedChunks   int
	FailedChunks    int
	UpdatedAt       time.Time
}
