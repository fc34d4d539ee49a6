package sanitizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDocumentDropsReservedMetadataFields(t *testing.T) {
	doc := map[string]interface{}{
		"_id":    "abc123",
		"_index": "products",
		"_score": 1.0,
		"title":  "widget",
	}
	got := SanitizeDocument(doc)
	assert.Equal(t, map[string]interface{}{"title": "widget"}, got)
}

func TestSanitizeDocumentDropsDotKeys(t *testing.T) {
	doc := map[string]interface{}{".": "x", "..": "y", "name": "ok"}
	got := SanitizeDocument(doc)
	assert.Equal(t, map[string]interface{}{"name": "ok"}, got)
}

func TestSanitizeDocumentDropsEmptyStringsAndNils(t *testing.T) {
	doc := map[string]interface{}{"empty": "", "missing": nil, "kept": "value"}
	got := SanitizeDocument(doc)
	assert.Equal(t, map[string]interface{}{"kept": "value"}, got)
}

func TestSanitizeDocumentPrunesEmptyNestedObjectsAndArrays(t *testing.T) {
	doc := map[string]interface{}{
		"nested": map[string]interface{}{"empty": ""},
		"list":   []interface{}{},
		"kept":   map[string]interface{}{"a": "b"},
	}
	got := SanitizeDocument(doc)
	assert.Equal(t, map[string]interface{}{"kept": map[string]interface{}{"a": "b"}}, got)
}

func TestSanitizeDocumentNormalizesDatesLikeQueryParams(t *testing.T) {
	tm := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := map[string]interface{}{"createdAt": tm}
	got := SanitizeDocument(doc)
	assert.Equal(t, tm.Format(time.RFC3339), got["createdAt"])
}

func TestSanitizeDocumentNormalizesBoolsLikeQueryParams(t *testing.T) {
	doc := map[string]interface{}{"active": true}
	got := SanitizeDocument(doc)
	assert.Equal(t, "true", got["active"])
}

func TestSanitizeArrayRecursesIntoNestedObjects(t *testing.T) {
	doc := map[string]interface{}{
		"tags": []interface{}{
			map[string]interface{}{"_id": "drop-me", "name": "a"},
			"b",
		},
	}
	got := SanitizeDocument(doc)
	assert.Equal(t, []interface{}{map[string]interface{}{"name": "a"}, "b"}, got["tags"])
}
