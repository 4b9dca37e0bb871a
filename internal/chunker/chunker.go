package chunker

import (
	"fmt"

	"minirag/internal/config"
	"minirag/internal/domain"
)

// New returns the chunker selected by cfg.
func New(cfg config.ChunkerConfig, tok domain.Tokenizer) (domain.Chunker, error) {
	opts := []Option{WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.Overlap)}
	switch cfg.Type {
	case "token", "":
		return NewTokenChunker(tok, opts...), nil
	case "sentence":
		return NewSentenceChunker(tok, opts...), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Type)
	}
}
