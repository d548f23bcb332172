package report

import (
	"bytes"
	"encoding/json"
	"strings"
)

const quote = "'"

// DelimitedText writes a comma-joined header line followed by one line per row
// with every field wrapped in single quotes. Embedded commas and quotes are
// written as-is, so such values break the line structure.
type DelimitedText struct{}

func (DelimitedText) Format() Format { return FormatCSV }

func (DelimitedText) Render(rs ResultSet) []byte {
	if len(rs.Columns) == 0 {
		return []byte{}
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(rs.Columns, ","))
	buf.WriteByte('\n')
	for _, row := range rs.Rows {
		for i, value := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(quote)
			buf.WriteString(valueText(value))
			buf.WriteString(quote)
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// MarkupTree writes one <row> element per row under a single <MyData> root,
// with one child element per column. Names and values are not escaped.
type MarkupTree struct{}

func (MarkupTree) Format() Format { return FormatXML }

func (MarkupTree) Render(rs ResultSet) []byte {
	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\" ?>\n")
	buf.WriteString("<MyData>\n")
	for _, row := range rs.Rows {
		buf.WriteString("  <row>\n")
		for i, value := range row {
			name := rs.Columns[i]
			buf.WriteString("    <" + name + ">")
			buf.WriteString(valueText(value))
			buf.WriteString("</" + name + ">\n")
		}
		buf.WriteString("  </row>\n")
	}
	buf.WriteString("</MyData>\n")
	return buf.Bytes()
}

// StructuredDocument writes a JSON array of objects keyed by column name, with
// keys kept in column order. A repeated column name keeps its first position
// and its last value.
type StructuredDocument struct{}

func (StructuredDocument) Format() Format { return FormatJSON }

func (StructuredDocument) Render(rs ResultSet) []byte {
	keys, lastIndex := objectKeys(rs.Columns)

	var buf bytes.Buffer
	buf.WriteByte('[')
	for r, row := range rs.Rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for k, key := range keys {
			if k > 0 {
				buf.WriteByte(',')
			}
			writeJSON(&buf, key)
			buf.WriteByte(':')
			writeJSON(&buf, jsonValue(row[lastIndex[key]]))
		}
		buf.WriteByte('}')
	}
	buf.WriteString("]\n")
	return buf.Bytes()
}

func objectKeys(columns []string) ([]string, map[string]int) {
	keys := make([]string, 0, len(columns))
	lastIndex := make(map[string]int, len(columns))
	for i, name := range columns {
		if _, seen := lastIndex[name]; !seen {
			keys = append(keys, name)
		}
		lastIndex[name] = i
	}
	return keys, lastIndex
}

func writeJSON(buf *bytes.Buffer, value any) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		buf.WriteString("null")
		return
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
}

// RawTabular writes each row as a positional tuple for inspection. There is no
// header and no quoting; nil prints as NULL.
type RawTabular struct{}

func (RawTabular) Format() Format { return FormatTBL }

func (RawTabular) Render(rs ResultSet) []byte {
	var buf bytes.Buffer
	for _, row := range rs.Rows {
		buf.WriteByte('(')
		for i, value := range row {
			if i > 0 {
				buf.WriteString(", ")
			}
			if value == nil {
				buf.WriteString("NULL")
				continue
			}
			buf.WriteString(valueText(value))
		}
		buf.WriteString(")\n")
	}
	return buf.Bytes()
}
