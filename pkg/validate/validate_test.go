package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/dify-rag-mcp/pkg/errmodel"
)

const validID = "6f2b3c1e-8a4d-4f5e-9b7a-0c1d2e3f4a5b"

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	ce := errmodel.From(err)
	require.Equal(t, errmodel.KindValidation, ce.Kind, "error: %v", err)
	assert.Equal(t, field, ce.Field)
}

func TestUUID(t *testing.T) {
	tests := []struct {
		name  string
		value string
		ok    bool
	}{
		{"canonical", validID, true},
		{"upper case", "6F2B3C1E-8A4D-4F5E-9B7A-0C1D2E3F4A5B", true},
		{"no hyphens", "6f2b3c1e8a4d4f5e9b7a0c1d2e3f4a5b", false},
		{"braced", "{6f2b3c1e-8a4d-4f5e-9b7a-0c1d2e3f4a5b}", false},
		{"garbage", "not-a-uuid", false},
		{"bad hex", "zf2b3c1e-8a4d-4f5e-9b7a-0c1d2e3f4a5b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UUID(tt.value, "id")
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.value, got)
				return
			}
			requireValidation(t, err, "id")
		})
	}
}

func TestIdentifierValidators(t *testing.T) {
	validators := map[string]func(string) (string, error){
		"dataset_id":     DatasetID,
		"document_id":    DocumentID,
		"segment_id":     SegmentID,
		"sub_segment_id": SubSegmentID,
		"tag_id":         TagID,
		"metadata_id":    MetadataID,
	}
	for field, fn := range validators {
		t.Run(field, func(t *testing.T) {
			_, err := fn("")
			requireValidation(t, err, field)
			assert.Contains(t, err.Error(), "cannot be empty")

			_, err = fn("   ")
			requireValidation(t, err, field)

			_, err = fn("abc")
			requireValidation(t, err, field)

			got, err := fn(validID)
			require.NoError(t, err)
			assert.Equal(t, validID, got)
		})
	}
}

func TestNonEmptyString(t *testing.T) {
	got, err := NonEmptyString("  hello  ", "name", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = NonEmptyString(" \t ", "name", 0)
	requireValidation(t, err, "name")

	_, err = NonEmptyString("abcdef", "name", 5)
	requireValidation(t, err, "name")
	assert.Contains(t, err.Error(), "cannot exceed 5 characters")

	got, err = NonEmptyString("abcde", "name", 5)
	require.NoError(t, err)
	assert.Equal(t, "abcde", got)
}

func TestPositiveInteger(t *testing.T) {
	tests := []struct {
		name  string
		value any
		min   int
		want  int
		ok    bool
	}{
		{"int", 5, 1, 5, true},
		{"float whole", 3.0, 1, 3, true},
		{"numeric string", " 7 ", 1, 7, true},
		{"json number", json.Number("12"), 1, 12, true},
		{"zero", 0, 1, 0, false},
		{"negative", -4, 1, 0, false},
		{"below custom min", 4, 5, 0, false},
		{"fraction", 2.5, 1, 0, false},
		{"word", "ten", 1, 0, false},
		{"nil", nil, 1, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PositiveInteger(tt.value, "top_k", tt.min)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			requireValidation(t, err, "top_k")
		})
	}
}

func TestScoreThreshold(t *testing.T) {
	for _, v := range []any{0.0, 1.0, 0.5, "0.25", 1} {
		_, err := ScoreThreshold(v)
		require.NoError(t, err, "value %v", v)
	}
	for _, v := range []any{-0.0001, 1.0001, 2, -1, "x", nil} {
		_, err := ScoreThreshold(v)
		requireValidation(t, err, "score_threshold")
	}
}

func TestEnumerations(t *testing.T) {
	tests := []struct {
		field   string
		fn      func(string) (string, error)
		allowed []string
	}{
		{"search_method", SearchMethod, SearchMethods},
		{"indexing_technique", IndexingTechnique, IndexingTechniques},
		{"permission", Permission, Permissions},
		{"doc_form", DocForm, DocForms},
		{"process_mode", ProcessMode, ProcessModes},
		{"operation", BatchOperation, BatchOperations},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			for _, v := range tt.allowed {
				got, err := tt.fn(v)
				require.NoError(t, err)
				assert.Equal(t, v, got)
			}
			_, err := tt.fn("bogus")
			requireValidation(t, err, tt.field)
			_, err = tt.fn("")
			requireValidation(t, err, tt.field)
		})
	}
}

func TestAPIKey(t *testing.T) {
	prefixed, err := APIKey("dataset-abc")
	require.NoError(t, err)
	assert.True(t, prefixed)

	prefixed, err = APIKey("app-abc")
	require.NoError(t, err)
	assert.False(t, prefixed)

	_, err = APIKey("  ")
	requireValidation(t, err, "api_key")
}

func TestURL(t *testing.T) {
	got, err := URL(" https://api.dify.ai/v1 ", "base_url")
	require.NoError(t, err)
	assert.Equal(t, "https://api.dify.ai/v1", got)

	for _, v := range []string{"", "api.dify.ai", "ftp://api.dify.ai", "https://"} {
		_, err := URL(v, "base_url")
		requireValidation(t, err, "base_url")
	}
}
