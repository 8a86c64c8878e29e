package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johndauphine/csv2pg/internal/schema"
)

// maxSampleRowsInPrompt bounds how many sampled values per column go in the
// prompt. Enough for the model to see the shape, small enough to stay cheap.
const maxSampleRowsInPrompt = 20

// maxSampleValueLen truncates a single sample value in the prompt.
const maxSampleValueLen = 100

// buildPrompt renders the chunk into the JSON-contract prompt the providers
// share. The response contract is one object per column, exactly covering
// the chunk.
func buildPrompt(chunk schema.ColumnChunk) string {
	var sb strings.Builder

	sb.WriteString("You are a PostgreSQL database schema expert. Analyze these CSV columns and suggest optimal PostgreSQL data types.\n\n")
	sb.WriteString("Columns to analyze: ")
	sb.WriteString(strings.Join(chunk.Columns, ", "))
	sb.WriteString("\n\nSample data (one object per row, values as read from the CSV):\n")
	sb.WriteString(sampleJSON(chunk))

	sb.WriteString(`

For each column determine:
1. The most appropriate PostgreSQL type
2. Whether the column should be nullable
3. Any constraints (PRIMARY KEY, UNIQUE)
4. Your reasoning

Return a JSON array with exactly one object per column, using this structure:
[
  {
    "column_name": "column_name_here",
    "postgresql_type": "postgresql_type_here",
    "confidence": "high|medium|low",
    "reasoning": "brief explanation",
    "nullable": true,
    "constraints": [],
    "cast_rule": null
  }
]

PostgreSQL type guidelines:
- Use integer for small whole numbers, bigint for large ones
- Use numeric(precision, scale) for decimals requiring exact precision
- Use varchar(n) for bounded strings, text for unbounded
- Use timestamptz for timestamps, date for dates without time
- Use uuid for UUID patterns, boolean for true/false values
- Never suggest array types; comma-separated values stay text
- Consider the null percentage when setting nullable

Respond ONLY with the JSON array, no additional text.`)

	return sb.String()
}

// sampleJSON renders up to maxSampleRowsInPrompt rows of the chunk's columns
// as a JSON array of objects.
func sampleJSON(chunk schema.ColumnChunk) string {
	rowCount := 0
	for _, s := range chunk.Samples {
		if len(s.Values) > rowCount {
			rowCount = len(s.Values)
		}
	}
	if rowCount > maxSampleRowsInPrompt {
		rowCount = maxSampleRowsInPrompt
	}

	rows := make([]map[string]string, 0, rowCount)
	for i := 0; i < rowCount; i++ {
		row := make(map[string]string, len(chunk.Samples))
		for _, s := range chunk.Samples {
			if i < len(s.Values) {
				row[s.Name] = clipValue(s.Values[i])
			}
		}
		rows = append(rows, row)
	}

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("(sample serialization failed: %v)", err)
	}
	return string(b)
}

func clipValue(v string) string {
	if len(v) > maxSampleValueLen {
		return v[:maxSampleValueLen] + "..."
	}
	return v
}
