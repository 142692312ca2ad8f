package models

import (
	"time"

	"gorm.io/datatypes"
)

type AlertType string

const (
	AlertTypeTemperatureHigh AlertType = "temperature_high"
	AlertTypeTemperatureLow  AlertType = "temperature_low"
	AlertTypeHumidityHigh    AlertType = "humidity_high"
	AlertTypeHumidityLow     AlertType = "humidity_low"
	AlertTypeBodyTempHigh    AlertType = "body_temp_high"
	AlertTypeBodyTempLow     AlertType = "body_temp_low"
)

// Hard bounds for incoming readings.
const (
	TemperatureMin     = -10.0
	TemperatureMax     = 50.0
	HumidityMin        = 0.0
	HumidityMax        = 100.0
	BodyTemperatureMin = 10.0
	BodyTemperatureMax = 50.0

	// Threshold settings accept a slightly wider body temperature range than readings do.
	BodyTemperatureThresholdMax = 60.0

	DeviceIDMaxLength = 128
)

// RetentionWindow is how long readings stay retrievable.
const RetentionWindow = 30 * 24 * time.Hour

type ThresholdRange struct {
	Min float64 `json:"min" zog:"min"`
	Max float64 `json:"max" zog:"max"`
}

type Thresholds struct {
	Temperature     ThresholdRange `json:"temperature" zog:"temperature" gorm:"embedded;embeddedPrefix:temperature_"`
	Humidity        ThresholdRange `json:"humidity" zog:"humidity" gorm:"embedded;embeddedPrefix:humidity_"`
	BodyTemperature ThresholdRange `json:"bodyTemperature" zog:"bodyTemperature" gorm:"embedded;embeddedPrefix:body_temperature_"`
}

// DefaultThresholds is what an unconfigured device gets: wide enough that it never alerts.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Temperature:     ThresholdRange{Min: 0, Max: 100},
		Humidity:        ThresholdRange{Min: 0, Max: 100},
		BodyTemperature: ThresholdRange{Min: 0, Max: 100},
	}
}

// FallbackThresholds spans the full hard bounds and is used when the threshold store is unreachable.
func FallbackThresholds() Thresholds {
	return Thresholds{
		Temperature:     ThresholdRange{Min: TemperatureMin, Max: TemperatureMax},
		Humidity:        ThresholdRange{Min: HumidityMin, Max: HumidityMax},
		BodyTemperature: ThresholdRange{Min: BodyTemperatureMin, Max: BodyTemperatureMax},
	}
}

type ThresholdSettings struct {
	DeviceID   string     `json:"deviceId" gorm:"primaryKey;size:128"`
	Thresholds Thresholds `json:"thresholds" gorm:"embedded"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

type Alert struct {
	Type      AlertType      `json:"type"`
	Value     float64        `json:"value"`
	Threshold ThresholdRange `json:"threshold"`
}

type Reading struct {
	ID              string                    `json:"id" gorm:"primaryKey;size:36"`
	DeviceID        string                    `json:"deviceId" gorm:"size:128;not null;index:idx_readings_device_ts,priority:1"`
	Timestamp       time.Time                 `json:"timestamp" gorm:"not null;index:idx_readings_device_ts,priority:2,sort:desc;index:idx_readings_ts,sort:desc"`
	Temperature     float64                   `json:"temperature"`
	Humidity        float64                   `json:"humidity"`
	BodyTemperature float64                   `json:"bodyTemperature"`
	Alerts          datatypes.JSONSlice[Alert] `json:"alerts"`
	CreatedAt       time.Time                 `json:"-"`
}

// ReadingInput is the ingestion payload as sent by a device.
type ReadingInput struct {
	DeviceID        string  `json:"deviceId" zog:"deviceId"`
	Temperature     float64 `json:"temperature" zog:"temperature"`
	Humidity        float64 `json:"humidity" zog:"humidity"`
	BodyTemperature float64 `json:"bodyTemperature" zog:"bodyTemperature"`
}

// HistoryQuery selects readings newer than Hours before Now, newest first.
type HistoryQuery struct {
	DeviceID string
	Hours    int
	Limit    int
	// Now anchors the window; zero means time.Now().
	Now time.Time
}

func (r *Reading) AlertList() []Alert {
	if r.Alerts == nil {
		return []Alert{}
	}
	return []Alert(r.Alerts)
}
