package tokenizer

import (
	"fmt"

	"minirag/internal/config"
	"minirag/internal/domain"
)

// New returns the tokenizer selected by cfg.
func New(cfg config.TokenizerConfig) (domain.Tokenizer, error) {
	switch cfg.Type {
	case "word", "":
		return NewWord(), nil
	case "tiktoken":
		return NewTiktoken(cfg.Encoding)
	default:
		return nil, fmt.Errorf("unknown tokenizer: %s", cfg.Type)
	}
}
