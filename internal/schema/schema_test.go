package schema

import "testing"

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		in   string
		want Confidence
	}{
		{"high", ConfidenceHigh},
		{"HIGH", ConfidenceHigh},
		{" low ", ConfidenceLow},
		{"medium", ConfidenceMedium},
		{"certain", ConfidenceMedium},
		{"", ConfidenceMedium},
	}
	for _, tt := range tests {
		if got := ParseConfidence(tt.in); got != tt.want {
			t.Errorf("ParseConfidence(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestValidPGType(t *testing.T) {
	valid := []string{"text", "integer", "varchar(100)", "numeric(10,2)", "timestamptz", "UUID", " boolean "}
	for _, typ := range valid {
		if !ValidPGType(typ) {
			t.Errorf("ValidPGType(%q) = false, want true", typ)
		}
	}
	invalid := []string{"text[]", "integer[]", "hstore", "blob", ""}
	for _, typ := range invalid {
		if ValidPGType(typ) {
			t.Errorf("ValidPGType(%q) = true, want false", typ)
		}
	}
}

func TestIsPrimaryKeyCandidate(t *testing.T) {
	flagged := InferredType{Constraints: []string{"NOT NULL", " primary key "}}
	if !flagged.IsPrimaryKeyCandidate() {
		t.Error("constraint list with PRIMARY KEY not recognized")
	}
	plain := InferredType{Constraints: []string{"UNIQUE"}}
	if plain.IsPrimaryKeyCandidate() {
		t.Error("UNIQUE constraint misread as primary key")
	}
}

func TestTableSchemaValidate(t *testing.T) {
	ok := &TableSchema{
		TableName:  "t",
		Columns:    []ColumnSchema{{Name: "id", PGType: "integer"}, {Name: "name", PGType: "text"}},
		PrimaryKey: "id",
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid schema rejected: %v", err)
	}

	dup := &TableSchema{
		TableName: "t",
		Columns:   []ColumnSchema{{Name: "a", PGType: "text"}, {Name: "a", PGType: "text"}},
	}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate column names accepted")
	}

	danglingPK := &TableSchema{
		TableName:  "t",
		Columns:    []ColumnSchema{{Name: "a", PGType: "text"}},
		PrimaryKey: "missing",
	}
	if err := danglingPK.Validate(); err == nil {
		t.Error("dangling primary key accepted")
	}

	empty := &TableSchema{TableName: "t"}
	if err := empty.Validate(); err == nil {
		t.Error("empty schema accepted")
	}
}

func TestColumnSampleHelpers(t *testing.T) {
	s := ColumnSample{
		Name:       "c",
		Values:     []string{"a", " ", "", "b "},
		NullCount:  2,
		TotalCount: 4,
	}
	if got := s.NullRatio(); got != 0.5 {
		t.Errorf("NullRatio = %f", got)
	}
	nn := s.NonNullValues()
	if len(nn) != 2 || nn[0] != "a" || nn[1] != "b" {
		t.Errorf("NonNullValues = %v", nn)
	}
}
