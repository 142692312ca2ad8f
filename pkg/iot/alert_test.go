package iot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

func cribThresholds() models.Thresholds {
	return models.Thresholds{
		Temperature:     models.ThresholdRange{Min: 18, Max: 26},
		Humidity:        models.ThresholdRange{Min: 30, Max: 60},
		BodyTemperature: models.ThresholdRange{Min: 36, Max: 37.5},
	}
}

func TestEvaluateAlerts_InsideRange(t *testing.T) {
	alerts := EvaluateAlerts(Values{Temperature: 22, Humidity: 45, BodyTemperature: 36.8}, cribThresholds())

	require.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

func TestEvaluateAlerts_SingleLow(t *testing.T) {
	th := cribThresholds()
	inside := Values{Temperature: 22, Humidity: 45, BodyTemperature: 36.8}

	tests := []struct {
		name   string
		values Values
		want   models.Alert
	}{
		{
			name:   "temperature",
			values: Values{Temperature: 17.9, Humidity: inside.Humidity, BodyTemperature: inside.BodyTemperature},
			want:   models.Alert{Type: models.AlertTypeTemperatureLow, Value: 17.9, Threshold: th.Temperature},
		},
		{
			name:   "humidity",
			values: Values{Temperature: inside.Temperature, Humidity: 12, BodyTemperature: inside.BodyTemperature},
			want:   models.Alert{Type: models.AlertTypeHumidityLow, Value: 12, Threshold: th.Humidity},
		},
		{
			name:   "bodyTemperature",
			values: Values{Temperature: inside.Temperature, Humidity: inside.Humidity, BodyTemperature: 35.2},
			want:   models.Alert{Type: models.AlertTypeBodyTempLow, Value: 35.2, Threshold: th.BodyTemperature},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := EvaluateAlerts(tt.values, th)
			assert.Equal(t, []models.Alert{tt.want}, alerts)
		})
	}
}

func TestEvaluateAlerts_BoundariesAreNormal(t *testing.T) {
	th := cribThresholds()

	atMin := Values{Temperature: th.Temperature.Min, Humidity: th.Humidity.Min, BodyTemperature: th.BodyTemperature.Min}
	atMax := Values{Temperature: th.Temperature.Max, Humidity: th.Humidity.Max, BodyTemperature: th.BodyTemperature.Max}

	assert.Empty(t, EvaluateAlerts(atMin, th))
	assert.Empty(t, EvaluateAlerts(atMax, th))
}

func TestEvaluateAlerts_OrderAndHigh(t *testing.T) {
	th := cribThresholds()

	alerts := EvaluateAlerts(Values{Temperature: 30, Humidity: 10, BodyTemperature: 39}, th)

	require.Len(t, alerts, 3)
	assert.Equal(t, models.AlertTypeTemperatureHigh, alerts[0].Type)
	assert.Equal(t, models.AlertTypeHumidityLow, alerts[1].Type)
	assert.Equal(t, models.AlertTypeBodyTempHigh, alerts[2].Type)
}

func TestEvaluateAlerts_BodyTemperatureScenario(t *testing.T) {
	th := models.DefaultThresholds()
	th.BodyTemperature = models.ThresholdRange{Min: 36, Max: 37}

	alerts := EvaluateAlerts(Values{Temperature: 23.5, Humidity: 55.2, BodyTemperature: 38.1}, th)

	assert.Equal(t, []models.Alert{{
		Type:      models.AlertTypeBodyTempHigh,
		Value:     38.1,
		Threshold: models.ThresholdRange{Min: 36, Max: 37},
	}}, alerts)
}

func TestEvaluateAlerts_DefaultsNeverAlert(t *testing.T) {
	th := models.DefaultThresholds()
	for _, v := range []Values{
		{Temperature: 0, Humidity: 0, BodyTemperature: 10},
		{Temperature: 50, Humidity: 100, BodyTemperature: 50},
		{Temperature: 21.3, Humidity: 48, BodyTemperature: 36.6},
	} {
		assert.Empty(t, EvaluateAlerts(v, th), "values %+v", v)
	}
}
