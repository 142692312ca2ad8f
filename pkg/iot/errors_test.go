package iot

import (
	"errors"
	"fmt"
	"testing"

	z "github.com/Oudwins/zog"
	"github.com/stretchr/testify/assert"
)

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "deviceId", fieldPath("DeviceID"))
	assert.Equal(t, "deviceId", fieldPath("deviceId"))
	assert.Equal(t, "bodyTemperature.min", fieldPath("BodyTemperature.Min"))
	assert.Equal(t, "humidity", fieldPath("humidity"))
}

func TestNewValidationError(t *testing.T) {
	issues := z.ZogIssueMap{
		"Temperature": {{Message: "temperature is required"}},
		"$root":       {{Message: "invalid json"}},
		"$first":      {{Message: "invalid json"}},
	}

	ve := NewValidationError(issues, "")
	assert.Equal(t, []FieldIssue{
		{Field: "body", Message: "invalid json"},
		{Field: "temperature", Message: "temperature is required"},
	}, ve.Issues)
	assert.Contains(t, ve.Error(), "temperature: temperature is required")
}

func TestErrorWrapping(t *testing.T) {
	err := storeError("append reading", fmt.Errorf("connection refused"))
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "connection refused")

	wrapped := fmt.Errorf("ingest: %w", &ValidationError{Issues: []FieldIssue{{Field: "deviceId", Message: "deviceId is required"}}})
	ve, ok := IsValidationError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "deviceId", ve.Issues[0].Field)
}

func TestNewValidationError_FirstIssueNotRepeated(t *testing.T) {
	issues := z.ZogIssueMap{
		"Temperature": {{Message: "temperature is required"}},
		"Humidity":    {{Message: "humidity is required"}},
		"$first":      {{Message: "humidity is required"}},
	}

	ve := NewValidationError(issues, "thresholds.")
	assert.Equal(t, []FieldIssue{
		{Field: "thresholds.humidity", Message: "humidity is required"},
		{Field: "thresholds.temperature", Message: "temperature is required"},
	}, ve.Issues)
}
