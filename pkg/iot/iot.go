package iot

//go:generate mockgen -source=iot.go -destination=mocks/iot_mock.go -package=mocks

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"liyu1981.xyz/crib-monitor-service/pkg/common"
	"liyu1981.xyz/crib-monitor-service/pkg/db"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

type IThreshold interface {
	// Get never fails: store errors yield FallbackThresholds.
	Get(ctx context.Context, deviceID string) models.ThresholdSettings
	Lookup(ctx context.Context, deviceID string) (*models.ThresholdSettings, error)
	Update(ctx context.Context, deviceID string, thresholds models.Thresholds) (*models.ThresholdSettings, error)
}

type IReading interface {
	Append(ctx context.Context, reading *models.Reading) error
	// Latest returns the newest reading for deviceID, or across all devices when deviceID is empty.
	Latest(ctx context.Context, deviceID string) (*models.Reading, error)
	History(ctx context.Context, q models.HistoryQuery) ([]models.Reading, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type ISensor interface {
	Ingest(ctx context.Context, input models.ReadingInput) (*models.Reading, error)
}

// IPublisher receives every reading after it has been persisted.
type IPublisher interface {
	Publish(reading models.Reading)
}

// LatestCache keeps the newest reading per device and overall outside the database.
type LatestCache interface {
	Put(ctx context.Context, reading models.Reading) error
	Latest(ctx context.Context, deviceID string) (*models.Reading, error)
	// Evict drops the device's entry and the overall entry.
	Evict(ctx context.Context, deviceID string) error
}

type Options struct {
	StoreTimeout      time.Duration
	ThresholdCacheTTL time.Duration
}

func (o Options) withDefaults() Options {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = common.DefaultStoreTimeout
	}
	if o.ThresholdCacheTTL <= 0 {
		o.ThresholdCacheTTL = common.DefaultThresholdCacheTTL
	}
	return o
}

type IOT struct {
	Db        db.DB
	Opts      Options
	Threshold IThreshold
	Reading   IReading
	Sensor    ISensor
	Publisher IPublisher
	Cache     LatestCache

	deviceLocks    *keyedMutex
	thresholdCache *cache.Cache
	staleCache     *staleSet
}

type ServiceOpts struct {
	Threshold IThreshold
	Reading   IReading
	Sensor    ISensor
	Publisher IPublisher
	Cache     LatestCache
}

// New builds an IOT with the database-backed services wired in.
func New(database db.DB, opts Options) *IOT {
	opts = opts.withDefaults()
	i := &IOT{
		Db:             database,
		Opts:           opts,
		deviceLocks:    newKeyedMutex(),
		thresholdCache: cache.New(opts.ThresholdCacheTTL, 2*opts.ThresholdCacheTTL),
		staleCache:     newStaleSet(),
	}
	i.Threshold = i.GetIThreshold()
	i.Reading = i.GetIReading()
	i.Sensor = i.GetISensor()
	return i
}

func (i *IOT) WithServices(opts ServiceOpts) *IOT {
	if opts.Threshold != nil {
		i.Threshold = opts.Threshold
	}
	if opts.Reading != nil {
		i.Reading = opts.Reading
	}
	if opts.Sensor != nil {
		i.Sensor = opts.Sensor
	}
	if opts.Publisher != nil {
		i.Publisher = opts.Publisher
	}
	if opts.Cache != nil {
		i.Cache = opts.Cache
	}
	return i
}

func (i *IOT) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, i.Opts.StoreTimeout)
}
