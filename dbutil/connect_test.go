package dbutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectUnknownConnector(t *testing.T) {
	_, err := Connect(context.Background(), "carrier-pigeon", "postgresql:///hostsel")
	assert.ErrorContains(t, err, `unknown sql_connector "carrier-pigeon"`)
}

func TestConnectPgxNeedsURL(t *testing.T) {
	_, err := Connect(context.Background(), ConnectorPgx, "")
	assert.ErrorContains(t, err, "database URL is empty")
}

func TestConnectPgxIsLazy(t *testing.T) {
	// sql.Open doesn't dial, so this works without a server.
	db, err := Connect(context.Background(), ConnectorPgx, "postgresql://nowhere.invalid/hostsel")
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestCloudEnvReportsUnsetVariables(t *testing.T) {
	t.Setenv("DB_USER", "hostsel")
	t.Setenv("DB_PASS", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("INSTANCE_CONNECTION_NAME", "proj:region:inst")

	env := &cloudEnvSettings{}
	err := env.getenv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASS")
	assert.Contains(t, err.Error(), "DB_NAME")
	assert.NotContains(t, err.Error(), "DB_USER")

	_, err = Connect(context.Background(), ConnectorCloudSQL, "")
	assert.ErrorContains(t, err, "cloudsqlconn: unset variables")
}
