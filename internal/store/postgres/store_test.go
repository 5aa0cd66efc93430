package postgres

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/October-1030/AAOKX-sub001/internal/exact"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arb?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "arb", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "  postgres://x ", Host: "ignored"}))
	assert.Contains(t, DSN(ClientConfig{Host: "h", Port: 6543, SSLMode: "require"}), ":6543/?sslmode=require")
}

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1.0889", "-42.125", "1999.999999999999", "0.00000001"} {
		d := exact.MustParse(s)
		got, err := fromNumeric(numeric(d))
		require.NoError(t, err, s)
		assert.True(t, got.Equal(d), "%s round-tripped to %s", s, got)
	}
}

func TestFromNumericRejectsNonFinite(t *testing.T) {
	_, err := fromNumeric(pgtype.Numeric{})
	assert.Error(t, err)

	_, err = fromNumeric(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)

	_, err = fromNumeric(pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true})
	assert.Error(t, err)

	v, err := fromNumeric(pgtype.Numeric{Int: big.NewInt(15), Exp: -1, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, "1.5", v.String())
}

func TestMigrationFiles(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_init.sql", files[0])

	data, err := migrationsFS.ReadFile("migrations/" + files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS opportunities")
	assert.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS audit_log")
}
