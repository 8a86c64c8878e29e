package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johndauphine/csv2pg/internal/schema"
)

// rawInferredType is the wire shape of one column in a provider response.
// Field aliases mirror the variations models actually produce.
type rawInferredType struct {
	ColumnName  string   `json:"column_name"`
	Name        string   `json:"name"`
	PGType      string   `json:"postgresql_type"`
	PGTypeAlt   string   `json:"pg_type"`
	Confidence  string   `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Nullable    *bool    `json:"nullable"`
	Constraints []string `json:"constraints"`
	CastRule    *string  `json:"cast_rule"`
}

// parseResponse extracts and validates the JSON array from a model response,
// tolerating markdown code fences around the payload.
func parseResponse(raw string, chunk schema.ColumnChunk) ([]schema.InferredType, error) {
	text := stripFences(raw)

	var items []rawInferredType
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}

	types := make([]schema.InferredType, 0, len(items))
	for _, item := range items {
		t, err := item.toInferredType()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (r rawInferredType) toInferredType() (schema.InferredType, error) {
	name := r.ColumnName
	if name == "" {
		name = r.Name
	}
	if name == "" {
		return schema.InferredType{}, fmt.Errorf("response item missing column_name")
	}

	pgType := r.PGType
	if pgType == "" {
		pgType = r.PGTypeAlt
	}
	if pgType == "" {
		return schema.InferredType{}, fmt.Errorf("column %q missing postgresql_type", name)
	}

	nullable := true
	if r.Nullable != nil {
		nullable = *r.Nullable
	}

	castRule := ""
	if r.CastRule != nil {
		castRule = strings.TrimSpace(*r.CastRule)
	}

	return schema.InferredType{
		ColumnName:  name,
		PGType:      strings.ToLower(strings.TrimSpace(pgType)),
		Confidence:  schema.ParseConfidence(r.Confidence),
		Reasoning:   r.Reasoning,
		Nullable:    nullable,
		Constraints: r.Constraints,
		CastRule:    castRule,
	}, nil
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	text := strings.TrimSpace(s)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
