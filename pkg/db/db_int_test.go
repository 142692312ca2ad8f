package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

func TestFileDatabaseSchema(t *testing.T) {
	common.SetTestLoggerNop()

	if os.Getenv(common.EnvKeyRunIntegrationTests) != "true" {
		t.Skip("Skipping integration test: RUN_INTEGRATION_TESTS environment variable not set")
	}

	testPath := filepath.Join(t.TempDir(), "crib.db")
	t.Setenv(common.EnvKeyIOTDbPath, testPath)

	instance, err := Open(UseSqliteDialector())
	require.NoError(t, err)
	defer instance.Close()

	require.NoError(t, instance.Ping(context.Background()))

	_, err = os.Stat(testPath)
	require.NoError(t, err, "database file should be created at %s", testPath)

	migrator := instance.Conn.Migrator()
	assert.True(t, migrator.HasTable(&models.Reading{}))
	assert.True(t, migrator.HasTable(&models.ThresholdSettings{}))
	assert.True(t, migrator.HasIndex(&models.Reading{}, "idx_readings_device_ts"))
	assert.True(t, migrator.HasIndex(&models.Reading{}, "idx_readings_ts"))
}
