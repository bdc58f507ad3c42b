package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// TokenConfig is one asset the settlement engine accepts.
type TokenConfig struct {
	Symbol    string `yaml:"symbol"`
	Precision int    `yaml:"precision"`
}

type tokensFile struct {
	Tokens []TokenConfig `yaml:"tokens"`
}

// TokenRegistry is the set of accepted tokens. A nil registry accepts any token.
type TokenRegistry struct {
	tokens map[string]TokenConfig
}

func LoadTokens(path string) (*TokenRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return ParseTokens(data)
}

func ParseTokens(data []byte) (*TokenRegistry, error) {
	var file tokensFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse tokens: %w", err)
	}

	reg := &TokenRegistry{tokens: make(map[string]TokenConfig)}
	for i, t := range file.Tokens {
		if t.Symbol == "" {
			return nil, fmt.Errorf("token at index %d missing symbol", i)
		}
		if t.Precision < 0 || t.Precision > 18 {
			return nil, fmt.Errorf("token %s precision %d out of range", t.Symbol, t.Precision)
		}
		sym := strings.ToUpper(t.Symbol)
		if _, dup := reg.tokens[sym]; dup {
			return nil, fmt.Errorf("token %s listed twice", sym)
		}
		t.Symbol = sym
		reg.tokens[sym] = t
	}
	return reg, nil
}

func (r *TokenRegistry) Supported(symbol string) bool {
	if r == nil {
		return true
	}
	_, ok := r.tokens[strings.ToUpper(symbol)]
	return ok
}

// Precisions maps every symbol to its decimal precision.
func (r *TokenRegistry) Precisions() map[string]int {
	out := make(map[string]int)
	if r == nil {
		return out
	}
	for sym, t := range r.tokens {
		out[sym] = t.Precision
	}
	return out
}
