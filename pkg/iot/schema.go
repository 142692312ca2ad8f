package iot

import (
	"fmt"
	"maps"
	"strings"

	z "github.com/Oudwins/zog"
	"liyu1981.xyz/crib-monitor-service/pkg/models"
)

func boundedFloat(name string, lo, hi float64) z.ZogSchema {
	return z.Float64().
		Required(z.Message(name + " is required")).
		GTE(lo, z.Message(fmt.Sprintf("%s must be between %g and %g", name, lo, hi))).
		LTE(hi, z.Message(fmt.Sprintf("%s must be between %g and %g", name, lo, hi)))
}

var deviceIDSchema = z.String().
	Trim().
	Required(z.Message("deviceId is required")).
	Min(1, z.Message("deviceId is required")).
	Max(models.DeviceIDMaxLength, z.Message(fmt.Sprintf("deviceId must be at most %d characters", models.DeviceIDMaxLength)))

// ReadingSchema validates an ingestion payload against the hard sensor bounds.
var ReadingSchema = z.Struct(z.Shape{
	"DeviceID":        deviceIDSchema,
	"Temperature":     boundedFloat("temperature", models.TemperatureMin, models.TemperatureMax),
	"Humidity":        boundedFloat("humidity", models.HumidityMin, models.HumidityMax),
	"BodyTemperature": boundedFloat("bodyTemperature", models.BodyTemperatureMin, models.BodyTemperatureMax),
})

func rangeSchema(name string, lo, hi float64) z.ZogSchema {
	return z.Struct(z.Shape{
		"Min": boundedFloat(name+".min", lo, hi),
		"Max": boundedFloat(name+".max", lo, hi),
	})
}

// ThresholdsSchema bounds what a user may configure. Body temperature thresholds
// may go up to 60 so a fever band can sit above the sensor range.
var ThresholdsSchema = z.Struct(z.Shape{
	"Temperature":     rangeSchema("temperature", models.TemperatureMin, models.TemperatureMax),
	"Humidity":        rangeSchema("humidity", models.HumidityMin, models.HumidityMax),
	"BodyTemperature": rangeSchema("bodyTemperature", models.BodyTemperatureMin, models.BodyTemperatureThresholdMax),
})

// ParseReadingInput validates raw transport data (decoded JSON, protobuf Struct maps)
// into a ReadingInput. A field present with value 0 counts as present.
func ParseReadingInput(data map[string]any) (models.ReadingInput, error) {
	if id, ok := data["deviceId"].(string); ok {
		data = maps.Clone(data)
		data["deviceId"] = strings.TrimSpace(id)
	}

	var in models.ReadingInput
	if issues := ReadingSchema.Parse(data, &in); issues != nil {
		return in, NewValidationError(issues, "")
	}
	return in, nil
}

func ValidateReadingInput(in models.ReadingInput) (models.ReadingInput, error) {
	return ParseReadingInput(map[string]any{
		"deviceId":        in.DeviceID,
		"temperature":     in.Temperature,
		"humidity":        in.Humidity,
		"bodyTemperature": in.BodyTemperature,
	})
}

// ValidateDeviceID trims id and checks it is non-empty and short enough.
func ValidateDeviceID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if issues := deviceIDSchema.Validate(&id); issues != nil {
		ve := &ValidationError{}
		for _, issue := range issues {
			ve.Issues = append(ve.Issues, FieldIssue{Field: "deviceId", Message: issue.Message})
		}
		ve.Issues = dedupe(ve.Issues)
		return id, ve
	}
	return id, nil
}

// ParseThresholds validates the "thresholds" object of a settings update.
func ParseThresholds(data map[string]any) (models.Thresholds, error) {
	var t models.Thresholds
	if issues := ThresholdsSchema.Parse(data, &t); issues != nil {
		return t, NewValidationError(issues, "thresholds.")
	}
	if err := checkOrdering(t); err != nil {
		return t, err
	}
	return t, nil
}

func ValidateThresholds(t models.Thresholds) error {
	_, err := ParseThresholds(thresholdsData(t))
	return err
}

func checkOrdering(t models.Thresholds) error {
	ve := &ValidationError{}
	for _, m := range []struct {
		name string
		rng  models.ThresholdRange
	}{
		{"temperature", t.Temperature},
		{"humidity", t.Humidity},
		{"bodyTemperature", t.BodyTemperature},
	} {
		if m.rng.Min >= m.rng.Max {
			ve.Issues = append(ve.Issues, FieldIssue{
				Field:   "thresholds." + m.name,
				Message: fmt.Sprintf("%s min must be less than max", m.name),
			})
		}
	}
	if len(ve.Issues) > 0 {
		return ve
	}
	return nil
}

func thresholdsData(t models.Thresholds) map[string]any {
	rng := func(r models.ThresholdRange) map[string]any {
		return map[string]any{"min": r.Min, "max": r.Max}
	}
	return map[string]any{
		"temperature":     rng(t.Temperature),
		"humidity":        rng(t.Humidity),
		"bodyTemperature": rng(t.BodyTemperature),
	}
}
