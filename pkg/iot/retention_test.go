package iot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/iot/mocks"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

func TestRetentionSweep(t *testing.T) {
	common.SetTestLoggerNop()
	iotObj := newTestIOT(t)
	now := time.Now().UTC()

	appendAt(t, iotObj, DefaultTestDeviceID, now.Add(-models.RetentionWindow-time.Hour), 20)
	appendAt(t, iotObj, DefaultTestDeviceID, now.Add(-time.Hour), 20)

	sweeper := NewRetentionSweeper(iotObj.Reading, time.Hour)
	sweeper.now = func() time.Time { return now }

	deleted, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestRetentionRun_SweepsUntilCancelled(t *testing.T) {
	common.SetTestLoggerNop()
	ctrl := gomock.NewController(t)
	reading := mocks.NewMockIReading(ctrl)

	swept := make(chan struct{}, 10)
	reading.EXPECT().DeleteExpired(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, time.Time) (int64, error) {
		swept <- struct{}{}
		return 0, fmt.Errorf("database is locked")
	}).MinTimes(2)

	sweeper := NewRetentionSweeper(reading, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	<-swept
	<-swept
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRetentionSweeper_DefaultInterval(t *testing.T) {
	s := NewRetentionSweeper(nil, 0)
	assert.Equal(t, common.DefaultRetentionSweepInterval, s.Interval)
}
