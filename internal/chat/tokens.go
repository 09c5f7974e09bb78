package chat

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the prompt size of a message for accounting logs.
type TokenCounter interface {
	Count(text string) (int, error)
}

// TiktokenCounter counts tokens with the encoding of an OpenAI model. The
// encoding is loaded on first use because tiktoken fetches it over the
// network.
type TiktokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
	err   error
}

// NewTiktokenCounter creates a counter for model, falling back to
// cl100k_base for models tiktoken does not know.
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) load() {
	c.enc, c.err = tiktoken.EncodingForModel(c.model)
	if c.err != nil {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	}
	if c.err != nil {
		c.err = fmt.Errorf("failed to load token encoding: %w", c.err)
	}
}

func (c *TiktokenCounter) Count(text string) (int, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return 0, c.err
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
