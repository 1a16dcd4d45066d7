// Package pipeline implements the analysis run: capability classification,
// context collection, relevance selection, capability execution, insight
// generation, and recommendation generation, sequenced by the Orchestrator.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"advisor/internal/inference"
)

// completeStructured issues a structured-output inference call, falling back
// to plain completion plus JSON extraction when the client cannot enforce a
// response schema. The decoded object lands in out.
func completeStructured(ctx context.Context, client inference.LLMClient, systemPrompt, userPrompt, schema string, out interface{}) error {
	if schemaClient, ok := inference.AsSchemaCapable(client); ok {
		raw, err := schemaClient.CompleteWithSchema(ctx, systemPrompt, userPrompt, schema)
		if err == nil {
			return decodeJSONResponse(raw, out)
		}
		if !errors.Is(err, inference.ErrSchemaNotSupported) {
			return err
		}
	}

	raw, err := client.CompleteWithSystem(ctx, systemPrompt,
		userPrompt+"\n\nRespond with a single JSON object only. No markdown, no commentary.")
	if err != nil {
		return err
	}
	return decodeJSONResponse(raw, out)
}

func decodeJSONResponse(raw string, out interface{}) error {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return fmt.Errorf("no JSON object in response: %q", truncate(raw, 200))
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("JSON parse failed: %w", err)
	}
	return nil
}

// extractJSON finds the first balanced JSON object in response (handles
// markdown wrappers and thinking preambles).
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// clampConfidence forces a model-reported confidence into [0,1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
