package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CompleteJSON executes a completion and parses the JSON object or array in
// the response into target. Models habitually wrap JSON in prose or code
// fences, so the first-to-last bracket span is extracted before parsing.
func CompleteJSON(ctx context.Context, c Completer, req Request, target interface{}) error {
	response, err := c.Complete(ctx, req)
	if err != nil {
		return err
	}

	jsonStr, err := extractJSON(response)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("parse JSON: %w (response: %s)", err, truncate(jsonStr, 200))
	}

	return nil
}

// extractJSON finds the outermost JSON object or array in a model response.
func extractJSON(response string) (string, error) {
	jsonStart := strings.Index(response, "{")
	if jsonStart == -1 {
		jsonStart = strings.Index(response, "[")
	}
	jsonEnd := strings.LastIndex(response, "}")
	if jsonEnd == -1 {
		jsonEnd = strings.LastIndex(response, "]")
	}

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return "", fmt.Errorf("no valid JSON found in response: %s", truncate(response, 200))
	}

	return response[jsonStart : jsonEnd+1], nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
