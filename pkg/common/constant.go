package common

import "time"

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyIOTDBType string = "IOT_DB_TYPE"
	EnvKeyIOTDbPath string = "IOT_DB_PATH"
	EnvKeyIOTDbDSN  string = "IOT_DB_DSN"

	EnvKeyIOTHttpHostPort string = "IOT_HTTP_HOST_PORT"
	EnvKeyIOTGrpcHostPort string = "IOT_GRPC_HOST_PORT"
	EnvKeyIOTCorsOrigin   string = "IOT_CORS_ORIGIN"

	EnvKeyIOTDefaultRate  string = "IOT_DEFAULT_RATE"
	EnvKeyIOTDefaultBurst string = "IOT_DEFAULT_BURST"

	EnvKeyIOTStoreTimeout           string = "IOT_STORE_TIMEOUT"
	EnvKeyIOTRetentionSweepInterval string = "IOT_RETENTION_SWEEP_INTERVAL"
	EnvKeyIOTThresholdCacheTTL      string = "IOT_THRESHOLD_CACHE_TTL"
	EnvKeyIOTBroadcastBuffer        string = "IOT_BROADCAST_BUFFER"
	EnvKeyIOTDefaultDeviceID        string = "IOT_DEFAULT_DEVICE_ID"

	EnvKeyIOTRedisAddr string = "IOT_REDIS_ADDR"

	EnvKeyIOTMqttBrokerURL   string = "IOT_MQTT_BROKER_URL"
	EnvKeyIOTMqttClientID    string = "IOT_MQTT_CLIENT_ID"
	EnvKeyIOTMqttTopicPrefix string = "IOT_MQTT_TOPIC_PREFIX"

	EnvKeyIOTOtlpEndpoint string = "IOT_OTLP_ENDPOINT"

	LoggerNameIOTCore       string = "iot_core"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameGrpcServer    string = "grpc_server"
	LoggerNameBroadcaster   string = "broadcaster"
	LoggerNameMqttBridge    string = "mqtt_bridge"
	LoggerNameCache         string = "cache"

	LoggerFieldIOTCategory     string = "category"
	LoggerCategoryIOTReading   string = "reading"
	LoggerCategoryIOTAlert     string = "alert"
	LoggerCategoryIOTThreshold string = "threshold"
	LoggerCategoryIOTIngest    string = "ingest"
	LoggerCategoryIOTRetention string = "retention"
)

const (
	DefaultDeviceID = "esp32-besik-01"

	DefaultHttpHostPort           = ":1080"
	DefaultStoreTimeout           = 5 * time.Second
	DefaultRetentionSweepInterval = time.Hour
	DefaultThresholdCacheTTL      = 30 * time.Second
	DefaultBroadcastBuffer        = 16
	DefaultMqttTopicPrefix        = "crib/sensors"
)
