package iot

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/crib-monitor-service/pkg/db"
	"liyu1981.xyz/crib-monitor-service/pkg/iot/mocks"
)

const DefaultTestDeviceID = "crib-test"

// newTestIOT returns an IOT over its own in-memory database.
func newTestIOT(t *testing.T) *IOT {
	t.Helper()
	database, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return New(*database, Options{})
}

// newUnavailableIOT returns an IOT whose every query fails, as if the database were down.
func newUnavailableIOT(t *testing.T) *IOT {
	t.Helper()
	conn, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	database, err := db.Open(db.UsePostgresConnDialector(conn), db.WithoutMigration())
	require.NoError(t, err)
	return New(*database, Options{})
}

func GetMockIOTWithMemorySqliteDialector(t *testing.T, useMockIThreshold, useMockIReading bool) (
	*gomock.Controller,
	*IOT,
	*mocks.MockIThreshold,
	*mocks.MockIReading,
	*mocks.MockIPublisher,
) {
	ctrl := gomock.NewController(t)

	mockIThreshold := mocks.NewMockIThreshold(ctrl)
	mockIReading := mocks.NewMockIReading(ctrl)
	mockIPublisher := mocks.NewMockIPublisher(ctrl)

	iotInstance := newTestIOT(t)

	opts := ServiceOpts{Publisher: mockIPublisher}
	if useMockIThreshold {
		opts.Threshold = mockIThreshold
	}
	if useMockIReading {
		opts.Reading = mockIReading
	}
	iotInstance.WithServices(opts)

	return ctrl, iotInstance, mockIThreshold, mockIReading, mockIPublisher
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}
