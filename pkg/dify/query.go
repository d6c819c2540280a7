package dify

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/wilhg/dify-rag-mcp/pkg/validate"
)

// Query builders skip unset values so upstream defaults apply.

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setIntPtr(q url.Values, key string, v *int) {
	if v != nil {
		q.Set(key, strconv.Itoa(*v))
	}
}

func setBoolPtr(q url.Values, key string, v *bool) {
	if v != nil {
		q.Set(key, strconv.FormatBool(*v))
	}
}

// setPositive sends v when non-zero and rejects negatives.
func setPositive(q url.Values, key string, v int) error {
	if v == 0 {
		return nil
	}
	n, err := validate.PositiveInteger(v, key, 1)
	if err != nil {
		return err
	}
	q.Set(key, strconv.Itoa(n))
	return nil
}

func pagination(q url.Values, page, limit int) error {
	if err := setPositive(q, "page", page); err != nil {
		return err
	}
	return setPositive(q, "limit", limit)
}

// checkPath validates the identifiers of a nested resource path, outermost
// first: dataset, then document, segment and sub-segment.
func checkPath(dataset string, nested ...string) error {
	if _, err := validate.DatasetID(dataset); err != nil {
		return err
	}
	checks := []func(string) (string, error){validate.DocumentID, validate.SegmentID, validate.SubSegmentID}
	for i, id := range nested {
		if _, err := checks[i](id); err != nil {
			return err
		}
	}
	return nil
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}

func datasetPath(dataset string, tail ...string) string {
	return join(append([]string{"datasets", dataset}, tail...)...)
}

func documentPath(dataset, document string, tail ...string) string {
	return datasetPath(dataset, append([]string{"documents", document}, tail...)...)
}

func segmentsPath(dataset, document string, tail ...string) string {
	return documentPath(dataset, document, append([]string{"segments"}, tail...)...)
}
