// Package report turns a query result into one of the four supported text
// formats. Renderers are pure: the same ResultSet always produces the same
// bytes, and rendering never fails for a ResultSet whose rows all have
// len(Columns) values.
package report

import "strings"

// ResultSet is the in-memory snapshot of one executed query. Columns keeps the
// projection order (duplicates included) and Rows keeps the executor's order.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

type Format string

const (
	FormatCSV  Format = "CSV"
	FormatXML  Format = "XML"
	FormatJSON Format = "JSON"
	FormatTBL  Format = "TBL"
)

// DefaultFormat is used for empty or unrecognized selectors.
const DefaultFormat = FormatJSON

// ParseFormat never fails: anything other than CSV, XML, JSON or TBL selects
// DefaultFormat.
func ParseFormat(raw string) Format {
	switch format := Format(strings.TrimSpace(raw)); format {
	case FormatCSV, FormatXML, FormatJSON, FormatTBL:
		return format
	default:
		return DefaultFormat
	}
}

type Renderer interface {
	Format() Format
	Render(rs ResultSet) []byte
}

func SelectRenderer(format Format) Renderer {
	switch format {
	case FormatCSV:
		return DelimitedText{}
	case FormatXML:
		return MarkupTree{}
	case FormatTBL:
		return RawTabular{}
	default:
		return StructuredDocument{}
	}
}

func RendererFor(selector string) Renderer {
	return SelectRenderer(ParseFormat(selector))
}

// Extension is the file extension used when a rendered report is stored.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXML:
		return "xml"
	case FormatTBL:
		return "txt"
	default:
		return "json"
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatXML:
		return "application/xml"
	case FormatTBL:
		return "text/plain"
	default:
		return "application/json"
	}
}
