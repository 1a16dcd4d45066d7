package inference

import (
	"context"
	"testing"
)

type basicTestClient struct{}

func (basicTestClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "basic", nil
}

func (basicTestClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "basic", nil
}

type schemaTestClient struct {
	basicTestClient
	capable bool
}

func (schemaTestClient) CompleteWithSchema(ctx context.Context, systemPrompt, userPrompt, jsonSchema string) (string, error) {
	return "schema", nil
}

func (c schemaTestClient) SchemaCapable() bool {
	return c.capable
}

func TestAsSchemaCapable(t *testing.T) {
	// Client without schema support
	if _, ok := AsSchemaCapable(basicTestClient{}); ok {
		t.Error("expected ok=false for plain client")
	}

	// Client with schema support disabled at runtime
	if _, ok := AsSchemaCapable(schemaTestClient{capable: false}); ok {
		t.Error("expected ok=false when SchemaCapable() returns false")
	}

	// Client with schema support enabled
	sc, ok := AsSchemaCapable(schemaTestClient{capable: true})
	if !ok {
		t.Fatal("expected ok=true for schema-capable client")
	}
	got, err := sc.CompleteWithSchema(context.Background(), "s", "u", "{}")
	if err != nil || got != "schema" {
		t.Errorf("unexpected schema call result: %q, %v", got, err)
	}

	// Gemini client always reports capable
	if _, ok := AsSchemaCapable(NewGeminiClient("key")); !ok {
		t.Error("expected gemini client to be schema capable")
	}
}

func TestErrSchemaNotSupportedMessage(t *testing.T) {
	if ErrSchemaNotSupported.Error() != "schema validation not supported" {
		t.Errorf("unexpected message: %s", ErrSchemaNotSupported.Error())
	}
}
