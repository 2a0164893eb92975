package calendar

import "strings"

// DetectDSNType classifies a DSN as "postgres" or "sqlite3" so callers can
// pick the matching driver without a separate driver flag.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}
