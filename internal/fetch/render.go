package fetch

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/tidwall/gjson"
)

// renderJSON pretty-prints valid JSON and returns anything else as is.
func renderJSON(body []byte) string {
	if !gjson.ValidBytes(body) {
		return string(body)
	}
	return gjson.GetBytes(body, "@pretty").Raw
}

// renderCSV lays rows out as pipe-separated lines. Ragged rows are
// accepted; unparseable input is returned as is.
func renderCSV(body []byte) string {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return string(body)
	}
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join(row, " | "))
	}
	return b.String()
}
