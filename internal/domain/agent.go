package domain

import (
	"fmt"
	"strings"
)

// RetrievalBackend selects the vector store the backend ingests into and reads from.
type RetrievalBackend string

const (
	RetrievalChroma RetrievalBackend = "chroma"
	RetrievalMilvus RetrievalBackend = "milvus"
)

// RetrieverStrategy selects single-query or multi-query retrieval.
type RetrieverStrategy string

const (
	RetrieverSingle RetrieverStrategy = "vectorstore"
	RetrieverMulti  RetrieverStrategy = "multi_query"
)

// ParserStrategy selects how ingested text is chunked.
type ParserStrategy string

const (
	ParserRecursive ParserStrategy = "recursive"
	ParserSimple    ParserStrategy = "simple"
)

// AgentConfig is passed unchanged into every dispatched action. It is a value
// type: holders copy it, so an in-flight action never sees a later change.
type AgentConfig struct {
	RetrievalBackend  RetrievalBackend  `json:"vectordb"`
	RetrieverStrategy RetrieverStrategy `json:"retriever_type"`
	ParserStrategy    ParserStrategy    `json:"parser_type"`
}

// DefaultAgentConfig returns the configuration a fresh session starts with.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		RetrievalBackend:  RetrievalChroma,
		RetrieverStrategy: RetrieverSingle,
		ParserStrategy:    ParserRecursive,
	}
}

// Validate checks every field against its closed set.
func (c AgentConfig) Validate() error {
	var errs []string
	switch c.RetrievalBackend {
	case RetrievalChroma, RetrievalMilvus:
	default:
		errs = append(errs, fmt.Sprintf("vectordb must be one of: chroma, milvus (got %q)", c.RetrievalBackend))
	}
	switch c.RetrieverStrategy {
	case RetrieverSingle, RetrieverMulti:
	default:
		errs = append(errs, fmt.Sprintf("retriever_type must be one of: vectorstore, multi_query (got %q)", c.RetrieverStrategy))
	}
	switch c.ParserStrategy {
	case ParserRecursive, ParserSimple:
	default:
		errs = append(errs, fmt.Sprintf("parser_type must be one of: recursive, simple (got %q)", c.ParserStrategy))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid agent config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// With returns a copy of c with one field replaced. Field names are the wire
// names (vectordb, retriever_type, parser_type).
func (c AgentConfig) With(field, value string) (AgentConfig, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "vectordb":
		c.RetrievalBackend = RetrievalBackend(value)
	case "retriever_type":
		c.RetrieverStrategy = RetrieverStrategy(value)
	case "parser_type":
		c.ParserStrategy = ParserStrategy(value)
	default:
		return c, fmt.Errorf("unknown agent config field %q", field)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Fields flattens the config for multipart form uploads.
func (c AgentConfig) Fields() map[string]string {
	return map[string]string{
		"vectordb":       string(c.RetrievalBackend),
		"retriever_type": string(c.RetrieverStrategy),
		"parser_type":    string(c.ParserStrategy),
	}
}

func (c AgentConfig) String() string {
	return fmt.Sprintf("vectordb=%s retriever_type=%s parser_type=%s",
		c.RetrievalBackend, c.RetrieverStrategy, c.ParserStrategy)
}
