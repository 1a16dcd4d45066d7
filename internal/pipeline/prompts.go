package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"advisor/internal/types"
)

// Response schemas for structured output. Gemini enforces these when the
// client is schema capable; otherwise they only shape the fallback prompt.

const classificationSchema = `{
  "type": "object",
  "properties": {
    "category": {"type": "string", "enum": ["DATA", "ACTION"]},
    "sub_type": {"type": "string"},
    "confidence": {"type": "number"},
    "reasoning": {"type": "string"}
  },
  "required": ["category", "sub_type", "confidence"]
}`

const selectionSchema = `{
  "type": "object",
  "properties": {
    "relevant": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  },
  "required": ["relevant"]
}`

const insightSchema = `{
  "type": "object",
  "properties": {
    "overview": {"type": "string"},
    "conditions": {"type": "string"},
    "risk": {"type": "string"},
    "opportunities": {"type": "string"}
  },
  "required": ["overview", "conditions", "risk", "opportunities"]
}`

const recommendationSchema = `{
  "type": "object",
  "properties": {
    "priority": {"type": "string", "enum": ["high", "medium", "low"]},
    "reasoning": {"type": "string"},
    "confidence": {"type": "number"},
    "trigger_phrase": {"type": "string"},
    "params": {"type": "object"},
    "estimated_impact": {"type": "string"},
    "estimated_gas": {"type": "string"}
  },
  "required": ["priority", "reasoning", "confidence", "trigger_phrase"]
}`

const classifySystemPrompt = `You classify agent capabilities for an autonomous analysis pipeline.
A DATA capability only reads state (prices, balances, feeds, posts).
An ACTION capability mutates state when invoked (trades, transfers, messages).
Pick the single best category and sub_type for the capability you are shown.`

const selectSystemPrompt = `You select which capabilities are worth invoking right now.
Given a group of capabilities and the current context, return only the names
that would produce useful signal. Return an empty list when nothing applies.
Never invent names that are not in the group.`

const triggerSystemPrompt = `You write natural-language trigger messages for agent capabilities.
Given one capability, write a single short message a user would send to make
the agent invoke exactly that capability. Return only the message text.`

const insightSystemPrompt = `You are a market analyst for an autonomous agent.
From raw capability results and ambient context, write a four-section analysis.
Be concrete and reference the data you were given. Each section is a short
paragraph of plain prose.`

const recommendSystemPrompt = `You turn an analysis into one concrete actionable recommendation for a
single agent capability. The trigger_phrase must be a complete message the
agent could act on immediately. params holds string key/value arguments the
capability needs. Be honest with confidence.`

func classifyPrompt(cap types.Capability) string {
	var sb strings.Builder
	sb.WriteString("Capability:\n")
	fmt.Fprintf(&sb, "  name: %s\n", cap.Name)
	fmt.Fprintf(&sb, "  provider: %s\n", cap.Provider)
	fmt.Fprintf(&sb, "  description: %s\n", cap.Description)
	if len(cap.Aliases) > 0 {
		fmt.Fprintf(&sb, "  aliases: %s\n", strings.Join(cap.Aliases, ", "))
	}
	for _, ex := range cap.Examples {
		fmt.Fprintf(&sb, "  example: %s\n", ex)
	}
	fmt.Fprintf(&sb, "\nDATA sub_types: %s\n", strings.Join(types.DataTypes, ", "))
	fmt.Fprintf(&sb, "ACTION sub_types: %s\n", strings.Join(types.ActionTypes, ", "))
	sb.WriteString("Prefer a listed sub_type; use a short lowercase label only if none fits.")
	return sb.String()
}

func selectPrompt(subType string, group []types.Capability, snapshots []types.ContextSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capability group (sub_type=%s):\n", subType)
	writeCapabilityList(&sb, group)
	sb.WriteString("\nCurrent context:\n")
	writeContext(&sb, snapshots)
	sb.WriteString("\nReturn the names of the capabilities relevant to this context.")
	return sb.String()
}

func triggerPrompt(cap types.Capability) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capability: %s\n", cap.Name)
	fmt.Fprintf(&sb, "Description: %s\n", cap.Description)
	for _, ex := range cap.Examples {
		fmt.Fprintf(&sb, "Example exchange: %s\n", ex)
	}
	sb.WriteString("\nWrite the trigger message.")
	return sb.String()
}

func insightPrompt(results []types.ExecutionResult, snapshots []types.ContextSnapshot) string {
	var sb strings.Builder
	sb.WriteString("Capability results:\n")
	if len(results) == 0 {
		sb.WriteString("  (none)\n")
	}
	for _, r := range results {
		if r.Success {
			fmt.Fprintf(&sb, "  [ok] %s: %s\n", r.Capability, compactJSON(r.Data))
		} else {
			fmt.Fprintf(&sb, "  [failed] %s: %s\n", r.Capability, r.Error)
		}
	}
	sb.WriteString("\nAmbient context:\n")
	writeContext(&sb, snapshots)
	sb.WriteString("\nWrite the four sections: overview, conditions, risk, opportunities.")
	return sb.String()
}

func recommendSelectPrompt(subType string, group []types.Capability, insight *Insight) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ACTION capability group (sub_type=%s):\n", subType)
	writeCapabilityList(&sb, group)
	sb.WriteString("\nAnalysis:\n")
	writeInsight(&sb, insight)
	sb.WriteString("\nReturn the names of the capabilities worth recommending given this analysis.")
	return sb.String()
}

func recommendPrompt(cap types.Capability, insight *Insight) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capability: %s (provider %s)\n", cap.Name, cap.Provider)
	fmt.Fprintf(&sb, "Description: %s\n", cap.Description)
	sb.WriteString("\nAnalysis:\n")
	writeInsight(&sb, insight)
	sb.WriteString("\nProduce the recommendation object for this capability.")
	return sb.String()
}

func writeCapabilityList(sb *strings.Builder, caps []types.Capability) {
	for _, c := range caps {
		fmt.Fprintf(sb, "  - %s (provider %s): %s\n", c.Name, c.Provider, c.Description)
	}
}

func writeContext(sb *strings.Builder, snapshots []types.ContextSnapshot) {
	if len(snapshots) == 0 {
		sb.WriteString("  (none)\n")
		return
	}
	for _, s := range snapshots {
		fmt.Fprintf(sb, "  %s: %s\n", s.Provider, compactJSON(s.Data))
	}
}

func writeInsight(sb *strings.Builder, insight *Insight) {
	fmt.Fprintf(sb, "Overview: %s\n", insight.Overview)
	fmt.Fprintf(sb, "Conditions: %s\n", insight.Conditions)
	fmt.Fprintf(sb, "Risk: %s\n", insight.Risk)
	fmt.Fprintf(sb, "Opportunities: %s\n", insight.Opportunities)
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
