package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/invopop/jsonschema"
)

// invokeStructured is the shared contract behind every capability: validate
// the typed input, render the capability's chat template, make exactly one
// completion call, and parse the reply into the typed output. No retries,
// no state between calls.
func invokeStructured[I any, O any](ctx context.Context, c *Client, name string, tpl prompt.ChatTemplate, in I, vars map[string]any) (*O, error) {
	if err := c.validate.Struct(in); err != nil {
		return nil, validationErr(name, err)
	}

	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		// Template rendering happens before the network call, so a render
		// failure is an input problem, not an upstream one.
		return nil, validationErr(name, err)
	}
	msgs = append(msgs, schema.SystemMessage(outputInstruction[O]()))

	resp, err := c.chat.Generate(ctx, msgs)
	if err != nil {
		return nil, upstreamErr(name, err)
	}

	payload, err := extractJSON(resp.Content)
	if err != nil {
		return nil, upstreamErr(name, err)
	}
	out := new(O)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return nil, upstreamErr(name, fmt.Errorf("decode output: %w", err))
	}
	if err := c.validate.Struct(out); err != nil {
		return nil, upstreamErr(name, fmt.Errorf("output schema violation: %w", err))
	}
	return out, nil
}

// outputInstruction renders the JSON schema of O into a system instruction
// appended after the capability template.
func outputInstruction[O any]() string {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	var out O
	s := reflector.Reflect(&out)
	data, err := json.Marshal(s)
	if err != nil {
		// Reflection over our own output structs cannot fail at runtime;
		// fall back to a bare instruction if it somehow does.
		return "Respond with a single JSON object and no other text."
	}
	return "Respond with a single JSON object conforming to this JSON schema, and no other text:\n" + string(data)
}

// extractJSON pulls the first JSON object out of a model reply, tolerating
// markdown code fences and surrounding prose.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in reply")
	}
	return s[start : end+1], nil
}
