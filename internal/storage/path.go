package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const reportRoot = "reports"

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildReportPath returns reports/date=YYYY-MM-DD/report-<delivery>.<ext>,
// dated in UTC.
func BuildReportPath(deliveryID, extension string, finishedAt time.Time) (string, error) {
	if err := validatePathComponent(deliveryID, "delivery id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(extension, "extension"); err != nil {
		return "", err
	}

	ts := finishedAt.UTC()
	return path.Join(
		reportRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("report-%s.%s", deliveryID, extension),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
