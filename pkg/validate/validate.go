// Package validate holds the argument checks run before any upstream call.
// Each function returns the normalized value or a validation error from
// errmodel carrying the offending field and value.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

// Closed value sets accepted by the upstream service.
var (
	SearchMethods      = []string{"semantic_search", "keyword_search", "hybrid_search", "full_text_search"}
	IndexingTechniques = []string{"high_quality", "economy"}
	Permissions        = []string{"only_me", "all_team_members", "partial_members"}
	DocForms           = []string{"text_model", "hierarchical_model", "qa_model"}
	ProcessModes       = []string{"automatic", "custom", "hierarchical"}
	BatchOperations    = []string{"enable", "disable", "delete"}
)

// APIKeyPrefix is the prefix the upstream uses for knowledge-base keys.
const APIKeyPrefix = "dataset-"

// UUID requires value to be a canonical, hyphenated UUID.
func UUID(value, field string) (string, error) {
	if len(value) != 36 {
		return "", invalidUUID(value, field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return "", invalidUUID(value, field)
	}
	return value, nil
}

func invalidUUID(value, field string) error {
	return errmodel.Validation(field, value, fmt.Sprintf("Invalid UUID format for %s: %s", field, value))
}

func DatasetID(id string) (string, error)    { return identifier(id, "dataset_id", "Dataset ID") }
func DocumentID(id string) (string, error)   { return identifier(id, "document_id", "Document ID") }
func SegmentID(id string) (string, error)    { return identifier(id, "segment_id", "Segment ID") }
func SubSegmentID(id string) (string, error) { return identifier(id, "sub_segment_id", "Sub-segment ID") }
func TagID(id string) (string, error)        { return identifier(id, "tag_id", "Tag ID") }
func MetadataID(id string) (string, error)   { return identifier(id, "metadata_id", "Metadata ID") }

func identifier(value, field, label string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", errmodel.Validation(field, value, label+" cannot be empty")
	}
	return UUID(value, field)
}

// NonEmptyString trims value and rejects blanks. maxLength <= 0 means no limit.
func NonEmptyString(value, field string, maxLength int) (string, error) {
	v := strings.TrimSpace(value)
	rules := []validation.Rule{validation.Required.Error("cannot be empty")}
	if maxLength > 0 {
		rules = append(rules, validation.RuneLength(0, maxLength).Error(fmt.Sprintf("cannot exceed %d characters", maxLength)))
	}
	if err := validation.Validate(v, rules...); err != nil {
		return "", errmodel.Validation(field, value, field+" "+err.Error())
	}
	return v, nil
}

// PositiveInteger coerces value to an int and rejects anything below min.
func PositiveInteger(value any, field string, min int) (int, error) {
	n, ok := toInt(value)
	if !ok {
		return 0, errmodel.Validation(field, value, field+" must be a valid integer")
	}
	if err := validation.Validate(n, validation.Min(min)); err != nil {
		return 0, errmodel.Validation(field, value, fmt.Sprintf("%s must be at least %d", field, min))
	}
	return n, nil
}

// ScoreThreshold coerces value to a float in the closed interval [0, 1].
func ScoreThreshold(value any) (float64, error) {
	const field = "score_threshold"
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) {
		return 0, errmodel.Validation(field, value, "score_threshold must be a valid number")
	}
	if err := validation.Validate(f, validation.Min(0.0), validation.Max(1.0)); err != nil {
		return 0, errmodel.Validation(field, value, "score_threshold must be between 0.0 and 1.0")
	}
	return f, nil
}

func SearchMethod(v string) (string, error)      { return oneOf(v, "search_method", SearchMethods) }
func IndexingTechnique(v string) (string, error) { return oneOf(v, "indexing_technique", IndexingTechniques) }
func Permission(v string) (string, error)        { return oneOf(v, "permission", Permissions) }
func DocForm(v string) (string, error)           { return oneOf(v, "doc_form", DocForms) }
func ProcessMode(v string) (string, error)       { return oneOf(v, "process_mode", ProcessModes) }
func BatchOperation(v string) (string, error)    { return oneOf(v, "operation", BatchOperations) }

func oneOf(value, field string, allowed []string) (string, error) {
	in := make([]any, len(allowed))
	for i, a := range allowed {
		in[i] = a
	}
	if err := validation.Validate(value, validation.Required, validation.In(in...)); err != nil {
		return "", errmodel.Validation(field, value,
			fmt.Sprintf("Invalid %s %q, must be one of: %s", field, value, strings.Join(allowed, ", ")))
	}
	return value, nil
}

// APIKey rejects empty keys and reports whether key carries the knowledge-base prefix.
func APIKey(key string) (prefixed bool, err error) {
	k := strings.TrimSpace(key)
	if k == "" {
		return false, errmodel.Validation("api_key", "", "API key cannot be empty")
	}
	return strings.HasPrefix(k, APIKeyPrefix), nil
}

// URL requires an absolute http or https URL with a host.
func URL(value, field string) (string, error) {
	v := strings.TrimSpace(value)
	if err := validation.Validate(v, validation.Required, is.URL); err != nil {
		return "", errmodel.Validation(field, value, field+" must be a valid URL")
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errmodel.Validation(field, value, field+" must start with http:// or https://")
	}
	return v, nil
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case float32:
		return toInt(float64(v))
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
