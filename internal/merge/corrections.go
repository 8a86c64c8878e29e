package merge

import (
	"fmt"
	"strconv"
	"strings"
)

// currencyNameHints are name fragments that mark a column as money-like, so
// an integer guess is widened to numeric even when the sampled values happen
// to carry no decimal point.
var currencyNameHints = []string{"price", "amount", "cost", "total", "fee", "balance", "salary"}

// reclassifyArrays forces any column whose samples contain embedded commas,
// or whose inferred type is a PostgreSQL array, down to plain text and marks
// it for post-load conversion. Loading delimited lists through a bulk CSV
// path as arrays is not reliable, so the raw text is preserved instead.
func reclassifyArrays(cols []workingColumn) []string {
	var warnings []string
	for i := range cols {
		arrayTyped := strings.HasSuffix(cols[i].typ.PGType, "[]")
		commaValues := false
		for _, v := range cols[i].sample.NonNullValues() {
			if strings.Contains(v, ",") {
				commaValues = true
				break
			}
		}
		if !arrayTyped && !commaValues {
			continue
		}
		if cols[i].typ.PGType != "text" || !cols[i].arrayText {
			warnings = append(warnings, fmt.Sprintf(
				"column %q looks like a delimited list (%s); loading as text for post-import conversion",
				cols[i].name, cols[i].typ.PGType))
		}
		cols[i].typ.PGType = "text"
		cols[i].typ.CastRule = ""
		cols[i].arrayText = true
	}
	return warnings
}

// correctNumerics widens integer columns to numeric when the sample evidence
// contradicts the guess: decimal points in the values, or a money-like name.
// Sample evidence outranks inference confidence here.
func correctNumerics(cols []workingColumn) []string {
	var warnings []string
	for i := range cols {
		if !isIntegerType(cols[i].typ.PGType) {
			continue
		}
		reason := ""
		if samplesHaveDecimals(cols[i].sample.NonNullValues()) {
			reason = "sampled values contain decimals"
		} else if nameSuggestsCurrency(cols[i].name) {
			reason = "column name suggests a monetary value"
		}
		if reason == "" {
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"column %q widened from %s to numeric: %s", cols[i].name, cols[i].typ.PGType, reason))
		cols[i].typ.PGType = "numeric"
	}
	return warnings
}

// applyNullability keeps every column nullable unless there is strong
// evidence for NOT NULL: it is the primary key, or the sample is both large
// enough and entirely null-free. A small clean sample proves nothing.
func applyNullability(cols []workingColumn, pk string, minNullSample int) {
	for i := range cols {
		if cols[i].name == pk {
			cols[i].notNull = true
			continue
		}
		s := cols[i].sample
		cols[i].notNull = s.TotalCount >= minNullSample && s.NullCount == 0
	}
}

func isIntegerType(pgType string) bool {
	switch pgType {
	case "smallint", "integer", "bigint":
		return true
	}
	return false
}

func samplesHaveDecimals(values []string) bool {
	for _, v := range values {
		if !strings.Contains(v, ".") {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return true
		}
	}
	return false
}

func nameSuggestsCurrency(name string) bool {
	for _, hint := range currencyNameHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
