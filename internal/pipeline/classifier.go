package pipeline

import (
	"context"
	"strings"
	"sync"

	"advisor/internal/inference"
	"advisor/internal/logging"
	"advisor/internal/types"
)

// ClassificationSet is the join of a classification stage: every successfully
// classified capability lands in exactly one of the two maps, keyed by
// sub-type.
type ClassificationSet struct {
	DataByType      map[string][]types.Capability
	ActionByType    map[string][]types.Capability
	Classifications []types.Classification
}

// Classifier labels capabilities DATA or ACTION plus a sub-type, one
// inference call per capability.
type Classifier struct {
	llm inference.LLMClient
}

func NewClassifier(llm inference.LLMClient) *Classifier {
	return &Classifier{llm: llm}
}

type classificationResponse struct {
	Category   string  `json:"category"`
	SubType    string  `json:"sub_type"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Classify runs all capability classifications concurrently and groups the
// results. A capability whose call fails is dropped from the output, never
// failing the batch. Empty input makes no inference calls.
func (c *Classifier) Classify(ctx context.Context, caps []types.Capability) (*ClassificationSet, error) {
	set := &ClassificationSet{
		DataByType:   make(map[string][]types.Capability),
		ActionByType: make(map[string][]types.Capability),
	}
	if len(caps) == 0 {
		return set, nil
	}

	timer := logging.StartTimer(logging.CategoryClassify, "Classify")
	defer timer.StopWithInfo()

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, cap := range caps {
		wg.Add(1)
		go func(cap types.Capability) {
			defer wg.Done()

			var resp classificationResponse
			err := completeStructured(ctx, c.llm, classifySystemPrompt, classifyPrompt(cap), classificationSchema, &resp)
			if err != nil {
				logging.Get(logging.CategoryClassify).Warn("Classification failed for %s: %v", cap.Name, err)
				return
			}

			category := types.Category(strings.ToUpper(strings.TrimSpace(resp.Category)))
			if category != types.CategoryData && category != types.CategoryAction {
				logging.Get(logging.CategoryClassify).Warn("Unknown category %q for %s, dropping", resp.Category, cap.Name)
				return
			}
			subType := strings.ToLower(strings.TrimSpace(resp.SubType))
			if subType == "" {
				subType = "general"
			}

			cls := types.Classification{
				Capability: cap,
				Category:   category,
				Kind:       subType,
				Confidence: clampConfidence(resp.Confidence),
				Reasoning:  resp.Reasoning,
				Owner:      cap.Provider,
			}

			mu.Lock()
			defer mu.Unlock()
			set.Classifications = append(set.Classifications, cls)
			if category == types.CategoryData {
				set.DataByType[subType] = append(set.DataByType[subType], cap)
			} else {
				set.ActionByType[subType] = append(set.ActionByType[subType], cap)
			}
			logging.ClassifyDebug("%s -> %s/%s (%.2f)", cap.Name, category, subType, cls.Confidence)
		}(cap)
	}
	wg.Wait()

	logging.Classify("Classified %d/%d capabilities: %d data groups, %d action groups",
		len(set.Classifications), len(caps), len(set.DataByType), len(set.ActionByType))
	return set, nil
}
