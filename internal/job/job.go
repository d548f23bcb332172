// Package job defines the queue payload that asks for one report run.
package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reportq/reportq/internal/report"
)

type Job struct {
	Database string
	Format   report.Format
}

type payload struct {
	Database *string `json:"database"`
	Type     any     `json:"type,omitempty"`
}

// DecodeError reports a payload that cannot describe a job.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode job payload: %s: %v", e.Reason, e.Err)
	}
	return "decode job payload: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a {"database": ..., "type": ...} document. A missing or
// unknown type selects the default format; a missing database is an error.
func Decode(raw []byte) (Job, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Job{}, &DecodeError{Reason: "empty payload"}
	}
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Job{}, &DecodeError{Reason: "invalid json", Err: err}
	}
	if p.Database == nil {
		return Job{}, &DecodeError{Reason: "database is required"}
	}
	database := strings.TrimSpace(*p.Database)
	if database == "" {
		return Job{}, &DecodeError{Reason: "database is empty"}
	}

	selector, _ := p.Type.(string)
	return Job{Database: database, Format: report.ParseFormat(selector)}, nil
}

func Encode(j Job) ([]byte, error) {
	database := strings.TrimSpace(j.Database)
	if database == "" {
		return nil, fmt.Errorf("database is required")
	}
	format := j.Format
	if format == "" {
		format = report.DefaultFormat
	}
	return json.Marshal(struct {
		Database string `json:"database"`
		Type     string `json:"type"`
	}{Database: database, Type: string(format)})
}
