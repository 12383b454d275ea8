package ai

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// EncodingChat is used to size prompts for chat models.
	EncodingChat = "o200k_base"
	// EncodingEmbedding matches the tokenizer of the OpenAI embedding models.
	EncodingEmbedding = "cl100k_base"
)

var (
	encMu sync.Mutex
	encs  = map[string]*tiktoken.Tiktoken{}
)

func encoding(name string) (*tiktoken.Tiktoken, error) {
	encMu.Lock()
	defer encMu.Unlock()

	if enc, ok := encs[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", name, err)
	}
	encs[name] = enc
	return enc, nil
}

// CountTokens returns the number of tokens text encodes to.
func CountTokens(encodingName, text string) (int, error) {
	enc, err := encoding(encodingName)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// SplitTokens cuts text into consecutive pieces of at most window tokens each.
// The returned weights are the token counts of each piece.
func SplitTokens(encodingName, text string, window int) ([]string, []int, error) {
	if window <= 0 {
		return nil, nil, fmt.Errorf("invalid token window %d", window)
	}
	enc, err := encoding(encodingName)
	if err != nil {
		return nil, nil, err
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= window {
		return []string{text}, []int{len(tokens)}, nil
	}

	var (
		pieces  []string
		weights []int
	)
	for start := 0; start < len(tokens); start += window {
		end := min(start+window, len(tokens))
		pieces = append(pieces, enc.Decode(tokens[start:end]))
		weights = append(weights, end-start)
	}
	return pieces, weights, nil
}
