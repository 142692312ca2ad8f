package iot

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zconst"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every rejected field of a request, not just the first.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// NewValidationError flattens a zog issue map into field issues, ordered by field name.
// prefix is prepended to every field path. zog repeats one issue under $first, which
// is skipped; $root issues are reported against the whole body.
func NewValidationError(issues z.ZogIssueMap, prefix string) *ValidationError {
	keys := make([]string, 0, len(issues))
	for k := range issues {
		if k == zconst.ISSUE_KEY_FIRST {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ve := &ValidationError{}
	for _, k := range keys {
		field := "body"
		if k != zconst.ISSUE_KEY_ROOT {
			field = prefix + fieldPath(k)
		}
		for _, issue := range issues[k] {
			ve.Issues = append(ve.Issues, FieldIssue{Field: field, Message: issue.Message})
		}
	}
	ve.Issues = dedupe(ve.Issues)
	return ve
}

func dedupe(issues []FieldIssue) []FieldIssue {
	seen := make(map[FieldIssue]struct{}, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		if _, ok := seen[issue]; ok {
			continue
		}
		seen[issue] = struct{}{}
		out = append(out, issue)
	}
	return out
}

// fieldPath turns a shape path like "BodyTemperature.Min" into its JSON form "bodyTemperature.min".
func fieldPath(key string) string {
	segments := strings.Split(key, ".")
	for i, s := range segments {
		if s == "DeviceID" {
			segments[i] = "deviceId"
			continue
		}
		r := []rune(s)
		if len(r) > 0 {
			r[0] = unicode.ToLower(r[0])
		}
		segments[i] = string(r)
	}
	return strings.Join(segments, ".")
}
