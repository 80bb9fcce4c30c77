package migrations

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

// Constraint names the billing repository maps onto domain errors.
var requiredConstraints = []string{
	"quotes_business_number_key",
	"invoices_business_number_key",
	"invoices_business_quote_key",
}

func TestUpMigrationDeclaresConstraints(t *testing.T) {
	data, err := FS.ReadFile("0001_billing.up.sql")
	require.NoError(t, err)
	sql := string(data)
	for _, name := range requiredConstraints {
		require.Regexp(t, regexp.MustCompile(`CONSTRAINT `+name+` UNIQUE`), sql)
	}
	require.Contains(t, sql, "PRIMARY KEY (business_id, doc_type)")
	require.Contains(t, sql, "event_id UUID PRIMARY KEY")
}

func TestDownMigrationDropsEveryTable(t *testing.T) {
	up, err := FS.ReadFile("0001_billing.up.sql")
	require.NoError(t, err)
	down, err := FS.ReadFile("0001_billing.down.sql")
	require.NoError(t, err)

	tables := regexp.MustCompile(`CREATE TABLE IF NOT EXISTS (\w+)`).FindAllStringSubmatch(string(up), -1)
	require.NotEmpty(t, tables)
	for _, m := range tables {
		require.Contains(t, string(down), "DROP TABLE IF EXISTS "+m[1]+";")
	}
}
