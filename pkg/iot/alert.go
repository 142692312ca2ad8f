package iot

import (
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

// Values are the three measured quantities of a reading.
type Values struct {
	Temperature     float64
	Humidity        float64
	BodyTemperature float64
}

type metricCheck struct {
	value float64
	rng   models.ThresholdRange
	low   models.AlertType
	high  models.AlertType
}

// EvaluateAlerts compares values with thresholds. Bounds are inclusive: a value equal to
// min or max is normal. Alerts come in metric order temperature, humidity, bodyTemperature.
func EvaluateAlerts(v Values, t models.Thresholds) []models.Alert {
	checks := [...]metricCheck{
		{v.Temperature, t.Temperature, models.AlertTypeTemperatureLow, models.AlertTypeTemperatureHigh},
		{v.Humidity, t.Humidity, models.AlertTypeHumidityLow, models.AlertTypeHumidityHigh},
		{v.BodyTemperature, t.BodyTemperature, models.AlertTypeBodyTempLow, models.AlertTypeBodyTempHigh},
	}

	alerts := make([]models.Alert, 0, len(checks))
	for _, c := range checks {
		var typ models.AlertType
		switch {
		case c.value < c.rng.Min:
			typ = c.low
		case c.value > c.rng.Max:
			typ = c.high
		default:
			continue
		}
		alerts = append(alerts, models.Alert{Type: typ, Value: c.value, Threshold: c.rng})
	}
	return alerts
}

func valuesOf(in models.ReadingInput) Values {
	return Values{
		Temperature:     in.Temperature,
		Humidity:        in.Humidity,
		BodyTemperature: in.BodyTemperature,
	}
}
