// Package inference provides the LLM client used by the analysis pipeline,
// plus a slot scheduler that caps concurrent API calls across pipeline stages.
package inference

import (
	"context"
	"errors"
)

// LLMClient defines the minimal interface pipeline stages use to call an LLM.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SchemaCapableLLMClient extends LLMClient with schema-enforced completions.
type SchemaCapableLLMClient interface {
	LLMClient
	CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error)
}

// ErrSchemaNotSupported indicates the provider rejected response schema
// enforcement; callers should fall back to plain completion with JSON
// extraction.
var ErrSchemaNotSupported = errors.New("schema validation not supported")

// schemaCapability is an optional interface for clients that can report at
// runtime whether schema enforcement works for the configured model.
type schemaCapability interface {
	SchemaCapable() bool
}

// AsSchemaCapable returns the schema-capable view of a client if it supports
// schema-enforced completions.
func AsSchemaCapable(client LLMClient) (SchemaCapableLLMClient, bool) {
	sc, ok := client.(SchemaCapableLLMClient)
	if !ok {
		return nil, false
	}
	if check, hasCheck := client.(schemaCapability); hasCheck && !check.SchemaCapable() {
		return nil, false
	}
	return sc, true
}
