package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/db"
)

func TestServeReleasesResourcesOnStartupFailure(t *testing.T) {
	common.SetTestLoggerNop()

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg, err := loadConfig(newViper())
	require.NoError(t, err)
	cfg.DBType = "memory"
	cfg.HTTPHostPort = "127.0.0.1:0"
	cfg.GRPCHostPort = busy.Addr().String()

	done := make(chan error, 1)
	go func() { done <- serve(context.Background(), cfg) }()

	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after the gRPC listener failed")
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")

	// the process-wide handle opened by serve has been closed on the way out
	assert.Error(t, db.GetInstance(nil).Ping(context.Background()))
}
