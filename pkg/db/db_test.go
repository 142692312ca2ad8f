package db

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"liyu1981.xyz/crib-monitor-service/pkg/common"
	_ "liyu1981.xyz/crib-monitor-service/pkg/testing"
)

func tableExists(db *gorm.DB, tableName string) bool {
	var count int64
	err := db.Raw(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, tableName,
	).Scan(&count).Error
	return err == nil && count > 0
}

func indexExists(db *gorm.DB, indexName string) bool {
	var count int64
	err := db.Raw(
		`SELECT count(*) FROM sqlite_master WHERE type='index' AND name=?`, indexName,
	).Scan(&count).Error
	return err == nil && count > 0
}

func TestWithMemorySqlite(t *testing.T) {
	common.SetTestLoggerNop()

	dialector := UseMemorySqliteDialector()

	instance := GetInstance(dialector)
	if instance == nil {
		t.Fatal("Expected non-nil DB instance")
	}

	var tables = []string{"readings", "threshold_settings"}
	for _, table := range tables {
		if !tableExists(instance.Conn, table) {
			t.Errorf("Expected table %q to exist after migration", table)
		}
	}

	for _, index := range []string{"idx_readings_device_ts", "idx_readings_ts"} {
		if !indexExists(instance.Conn, index) {
			t.Errorf("Expected index %q to exist after migration", index)
		}
	}
}

func TestSingletonConcurrency(t *testing.T) {
	common.SetTestLoggerNop()

	const goroutineCount = 20

	var wg sync.WaitGroup
	instances := make(chan *DB, goroutineCount)

	for range goroutineCount {
		wg.Add(1)
		go func() {
			defer wg.Done()
			instance := GetInstance(UseMemorySqliteDialector())
			instances <- instance
		}()
	}

	wg.Wait()
	close(instances)

	var first *DB
	for inst := range instances {
		if first == nil {
			first = inst
			continue
		}
		if inst != first {
			t.Error("Expected all instances to be the same (singleton), but found different ones")
		}
	}
}

func TestOpenIsolated(t *testing.T) {
	common.SetTestLoggerNop()

	a, err := Open(UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	defer a.Close()

	b, err := Open(UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Conn.Exec(
		`INSERT INTO threshold_settings (device_id, temperature_min, temperature_max, humidity_min, humidity_max, body_temperature_min, body_temperature_max) VALUES (?, 0, 100, 0, 100, 0, 100)`,
		"crib-a",
	).Error)

	var countA, countB int64
	require.NoError(t, a.Conn.Table("threshold_settings").Count(&countA).Error)
	require.NoError(t, b.Conn.Table("threshold_settings").Count(&countB).Error)
	assert.Equal(t, int64(1), countA)
	assert.Equal(t, int64(0), countB)
}

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		name     string
		dbType   string
		dsn      string
		wantName string
		wantErr  bool
	}{
		{name: "default is file", dbType: "", wantName: "sqlite"},
		{name: "file", dbType: "file", wantName: "sqlite"},
		{name: "memory", dbType: "MEMORY", wantName: "sqlite"},
		{name: "postgres", dbType: "postgres", dsn: "host=localhost user=crib dbname=crib", wantName: "postgres"},
		{name: "postgres without dsn", dbType: "postgres", wantErr: true},
		{name: "mysql", dbType: "mysql", dsn: "crib:crib@tcp(localhost:3306)/crib", wantName: "mysql"},
		{name: "mysql without dsn", dbType: "mysql", wantErr: true},
		{name: "unknown", dbType: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DialectorFor(tt.dbType, tt.dsn)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, d.Name())
		})
	}
}

func TestIsMemorySqlite(t *testing.T) {
	assert.True(t, isMemorySqlite(UseMemorySqliteDialector()))
	assert.True(t, isMemorySqlite(UseNamedMemorySqliteDialector("x")))
	assert.False(t, isMemorySqlite(UsePostgresConnDialector(nil)))
}
