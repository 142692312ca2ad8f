package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"liyu1981.xyz/crib-monitor-service/pkg/common"
)

type Config struct {
	DBType                 string        `mapstructure:"iot_db_type"`
	DBDSN                  string        `mapstructure:"iot_db_dsn"`
	HTTPHostPort           string        `mapstructure:"iot_http_host_port"`
	GRPCHostPort           string        `mapstructure:"iot_grpc_host_port"`
	CorsOrigin             string        `mapstructure:"iot_cors_origin"`
	DefaultRate            float64       `mapstructure:"iot_default_rate"`
	DefaultBurst           int           `mapstructure:"iot_default_burst"`
	StoreTimeout           time.Duration `mapstructure:"iot_store_timeout"`
	RetentionSweepInterval time.Duration `mapstructure:"iot_retention_sweep_interval"`
	ThresholdCacheTTL      time.Duration `mapstructure:"iot_threshold_cache_ttl"`
	BroadcastBuffer        int           `mapstructure:"iot_broadcast_buffer"`
	DefaultDeviceID        string        `mapstructure:"iot_default_device_id"`
	RedisAddr              string        `mapstructure:"iot_redis_addr"`
	MqttBrokerURL          string        `mapstructure:"iot_mqtt_broker_url"`
	MqttClientID           string        `mapstructure:"iot_mqtt_client_id"`
	MqttTopicPrefix        string        `mapstructure:"iot_mqtt_topic_prefix"`
	OtlpEndpoint           string        `mapstructure:"iot_otlp_endpoint"`
}

var configDefaults = map[string]any{
	common.EnvKeyIOTDBType:                 "file",
	common.EnvKeyIOTDbDSN:                  "",
	common.EnvKeyIOTHttpHostPort:           common.DefaultHttpHostPort,
	common.EnvKeyIOTGrpcHostPort:           "",
	common.EnvKeyIOTCorsOrigin:             "",
	common.EnvKeyIOTDefaultRate:            0.0,
	common.EnvKeyIOTDefaultBurst:           1,
	common.EnvKeyIOTStoreTimeout:           common.DefaultStoreTimeout,
	common.EnvKeyIOTRetentionSweepInterval: common.DefaultRetentionSweepInterval,
	common.EnvKeyIOTThresholdCacheTTL:      common.DefaultThresholdCacheTTL,
	common.EnvKeyIOTBroadcastBuffer:        common.DefaultBroadcastBuffer,
	common.EnvKeyIOTDefaultDeviceID:        common.DefaultDeviceID,
	common.EnvKeyIOTRedisAddr:              "",
	common.EnvKeyIOTMqttBrokerURL:          "",
	common.EnvKeyIOTMqttClientID:           "",
	common.EnvKeyIOTMqttTopicPrefix:        common.DefaultMqttTopicPrefix,
	common.EnvKeyIOTOtlpEndpoint:           "",
}

// newViper returns a viper that reads every key from the environment variable of the
// same name, falling back to configDefaults.
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range configDefaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	return v
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.DefaultRate < 0 {
		return cfg, fmt.Errorf("%s must not be negative", common.EnvKeyIOTDefaultRate)
	}
	if cfg.DefaultRate > 0 && cfg.DefaultBurst < 1 {
		return cfg, fmt.Errorf("%s must be at least 1 when %s is set", common.EnvKeyIOTDefaultBurst, common.EnvKeyIOTDefaultRate)
	}
	return cfg, nil
}
