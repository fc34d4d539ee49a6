// Package sanitizer cleans a document body before it is indexed: it drops
// Elasticsearch's reserved metadata fields (easy to carry over by accident
// when resubmitting a document fetched from a previous search hit), prunes
// empty values, and normalizes dates/bools through the same escaping
// shaper.ShapeRequest uses for query parameters, so a date stored in a
// document and the same date used to filter on it render identically.
// Arrays stay arrays; their elements are sanitized one by one.
package sanitizer

import (
	"time"

	"github.com/truemilk/estransport/internal/logger"
	"github.com/truemilk/estransport/shaper"
)

// reservedFields are metadata keys Elasticsearch attaches to search hits
// (_id, _index, ...). A document body carrying them back in would either be
// rejected or silently shadow the real field of the same name.
var reservedFields = map[string]bool{
	"_id": true, "_index": true, "_type": true, "_score": true,
	"_version": true, "_seq_no": true, "_primary_term": true, "_source": true,
}

// SanitizeDocument strips reserved metadata and empty values from a document
// body, recursively, and normalizes date/bool leaves through
// shaper.EscapeParam so they match the client's query-parameter formatting.
func SanitizeDocument(doc map[string]interface{}) map[string]interface{} {
	log := logger.Component("sanitizer")
	log.Debug().Int("fields", len(doc)).Msg("Sanitizing document")

	result := make(map[string]interface{})
	for key, value := range doc {
		if reservedFields[key] {
			log.Debug().Str("key", key).Msg("Dropping reserved metadata field")
			continue
		}
		// Elasticsearch treats "." and ".." as path separators, not field names.
		if key == "." || key == ".." {
			continue
		}

		switch v := value.(type) {
		case map[string]interface{}:
			if sanitized := SanitizeDocument(v); len(sanitized) > 0 {
				result[key] = sanitized
			}
		case []interface{}:
			if sanitized := sanitizeArray(v); len(sanitized) > 0 {
				result[key] = sanitized
			}
		case string:
			if v != "" {
				result[key] = v
			}
		case time.Time, bool:
			result[key] = string(shaper.EscapeParam(v))
		default:
			if value != nil {
				result[key] = value
			}
		}
	}

	return result
}

func sanitizeArray(arr []interface{}) []interface{} {
	result := make([]interface{}, 0, len(arr))
	for _, value := range arr {
		switch v := value.(type) {
		case map[string]interface{}:
			if sanitized := SanitizeDocument(v); len(sanitized) > 0 {
				result = append(result, sanitized)
			}
		case []interface{}:
			if sanitized := sanitizeArray(v); len(sanitized) > 0 {
				result = append(result, sanitized)
			}
		case string:
			if v != "" {
				result = append(result, v)
			}
		case time.Time, bool:
			result = append(result, string(shaper.EscapeParam(v)))
		default:
			if value != nil {
				result = append(result, value)
			}
		}
	}
	return result
}
