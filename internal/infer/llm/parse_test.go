package llm

import (
	"strings"
	"testing"

	"github.com/johndauphine/csv2pg/internal/schema"
)

func testChunk() schema.ColumnChunk {
	return schema.ColumnChunk{
		ID: 0, TotalChunks: 1,
		Columns: []string{"id", "name"},
	}
}

func TestParseResponse(t *testing.T) {
	raw := `[
		{"column_name": "id", "postgresql_type": "INTEGER", "confidence": "high",
		 "reasoning": "sequential integers", "nullable": false, "constraints": ["PRIMARY KEY"]},
		{"column_name": "name", "postgresql_type": "varchar(100)", "confidence": "medium",
		 "cast_rule": "empty string to null"}
	]`
	types, err := parseResponse(raw, testChunk())
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(types) != 2 {
		t.Fatalf("len(types) = %d", len(types))
	}
	id := types[0]
	if id.PGType != "integer" {
		t.Errorf("type = %q, want lowercased integer", id.PGType)
	}
	if id.Nullable {
		t.Error("explicit nullable=false ignored")
	}
	if !id.IsPrimaryKeyCandidate() {
		t.Error("constraints lost in parsing")
	}
	name := types[1]
	if !name.Nullable {
		t.Error("nullable must default to true when omitted")
	}
	if name.Confidence != schema.ConfidenceMedium || name.CastRule != "empty string to null" {
		t.Errorf("name = %+v", name)
	}
}

func TestParseResponseFieldAliases(t *testing.T) {
	raw := `[{"name": "id", "pg_type": "bigint", "confidence": "high"}]`
	types, err := parseResponse(raw, testChunk())
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if types[0].ColumnName != "id" || types[0].PGType != "bigint" {
		t.Errorf("aliases not honored: %+v", types[0])
	}
}

func TestParseResponseStripsFences(t *testing.T) {
	fenced := "```json\n[{\"column_name\": \"id\", \"postgresql_type\": \"integer\"}]\n```"
	types, err := parseResponse(fenced, testChunk())
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if len(types) != 1 {
		t.Errorf("len(types) = %d", len(types))
	}
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "The id column looks like an integer to me."},
		{"object not array", `{"column_name": "id", "postgresql_type": "integer"}`},
		{"missing name", `[{"postgresql_type": "integer"}]`},
		{"missing type", `[{"column_name": "id"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseResponse(tt.raw, testChunk()); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestBuildPromptMentionsEveryColumn(t *testing.T) {
	chunk := schema.ColumnChunk{
		ID: 1, TotalChunks: 3,
		Columns: []string{"user_id", "created_at"},
		Samples: []schema.ColumnSample{
			{Name: "user_id", Values: []string{"1", "2"}, TotalCount: 2},
			{Name: "created_at", Values: []string{"2024-01-01"}, TotalCount: 1},
		},
	}
	prompt := buildPrompt(chunk)
	for _, col := range chunk.Columns {
		if !strings.Contains(prompt, col) {
			t.Errorf("prompt missing column %q", col)
		}
	}
	if !strings.Contains(prompt, "JSON array") {
		t.Error("prompt missing response-format instruction")
	}
}
