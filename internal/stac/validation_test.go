package stac

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dylanlee/wncat/pkg/geojson"
)

// A trimmed item schema: enough structure to exercise the validator without
// fetching the published STAC schemas.
const testItemSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["stac_version", "type", "id", "geometry", "links", "assets", "properties"],
  "properties": {
    "stac_version": {"const": "1.0.0"},
    "type": {"const": "Feature"},
    "id": {"type": "string", "minLength": 1},
    "assets": {"type": "object"},
    "properties": {
      "type": "object",
      "required": ["datetime"]
    }
  }
}`

const testCollectionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["stac_version", "type", "id", "description", "license", "extent", "links", "keywords"],
  "properties": {
    "type": {"const": "Collection"},
    "keywords": {"type": "array", "minItems": 1}
  }
}`

func newTestValidator() *Validator {
	return NewValidatorWithLoaders(map[DocumentKind]gojsonschema.JSONLoader{
		KindItem:       gojsonschema.NewStringLoader(testItemSchema),
		KindCollection: gojsonschema.NewStringLoader(testCollectionSchema),
	})
}

func validItem(t *testing.T) *Item {
	t.Helper()
	footprint, err := geojson.NewFootprint([]float64{0, 0, 10, 10})
	require.NoError(t, err)

	item := NewItem("VFM_20120121T000000_ab12cd34", "viirs-1-day-composite-2012-01-21")
	item.Geometry = footprint
	item.Bbox = []float64{0, 0, 10, 10}
	item.Properties["datetime"] = nil
	item.Properties["start_datetime"] = "2012-01-21T00:00:00Z"
	item.Properties["end_datetime"] = "2012-01-21T23:59:59Z"
	return item
}

func TestValidateItem(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.ValidateItem(validItem(t)))
}

func TestValidateItemSchemaFailure(t *testing.T) {
	v := newTestValidator()
	item := validItem(t)
	delete(item.Properties, "datetime")

	err := v.ValidateItem(item)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, KindItem, verr.Kind)
	assert.Equal(t, item.Id, verr.ID)
	assert.NotEmpty(t, verr.Problems)
}

func TestValidateItemBBoxMismatch(t *testing.T) {
	v := newTestValidator()
	item := validItem(t)
	item.Bbox = []float64{0, 0, 20, 20}

	var verr *ValidationError
	require.ErrorAs(t, v.ValidateItem(item), &verr)
	assert.Contains(t, verr.Error(), "does not match bbox")
}

func TestValidateCollection(t *testing.T) {
	v := newTestValidator()

	c := NewCollection("viirs-1-day-composite", "viirs", "VIIRS composites")
	c.License = "CC0-1.0"
	c.Keywords = []string{"VIIRS", "flood"}
	c.Extent = NewOpenExtent([][]float64{{-180, -90, 180, 90}}, mustDay(t, "2012-01-20"))
	assert.NoError(t, v.ValidateCollection(c))

	c.Keywords = nil
	var verr *ValidationError
	require.ErrorAs(t, v.ValidateCollection(c), &verr)
	assert.Equal(t, KindCollection, verr.Kind)
}

func TestValidateCatalogWithoutSchema(t *testing.T) {
	v := newTestValidator()
	assert.NoError(t, v.ValidateCatalog(NewCatalog("Water Prediction Node", "", "root")))
}

func TestValidateNil(t *testing.T) {
	v := newTestValidator()
	assert.ErrorIs(t, v.ValidateItem(nil), ErrInvalidDocument)
	assert.ErrorIs(t, v.ValidateCollection(nil), ErrInvalidDocument)
	assert.ErrorIs(t, v.ValidateCatalog(nil), ErrInvalidDocument)
}

func TestValidatorBrokenSchema(t *testing.T) {
	v := NewValidatorWithLoaders(map[DocumentKind]gojsonschema.JSONLoader{
		KindItem: gojsonschema.NewStringLoader(`{"type": 12}`),
	})
	err := v.ValidateItem(validItem(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidDocument), "schema load errors are not document errors")
}

func TestItemJSONEncoding(t *testing.T) {
	item := validItem(t)
	item.Extensions = Extensions(ExtensionProjection, ExtensionProjection)

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "Feature", decoded["type"])
	assert.Equal(t, "1.0.0", decoded["stac_version"])
	assert.Equal(t, []any{ExtensionProjection}, decoded["stac_extensions"])

	geometry, ok := decoded["geometry"].(map[string]any)
	require.True(t, ok, "geometry should encode as an object")
	assert.Equal(t, "Polygon", geometry["type"])
}

func TestValidateBBox(t *testing.T) {
	tests := []struct {
		name    string
		bbox    []float64
		wantErr bool
	}{
		{"global", []float64{-180, -90, 180, 90}, false},
		{"3d", []float64{-10, -10, 0, 10, 10, 100}, false},
		{"wrong length", []float64{0, 0, 1}, true},
		{"west out of range", []float64{-181, 0, 0, 1}, true},
		{"north out of range", []float64{0, 0, 1, 91}, true},
		{"inverted", []float64{10, 0, 0, 1}, true},
		{"inverted elevation", []float64{-10, -10, 100, 10, 10, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBBox(tt.bbox)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBBox(%v) error = %v, wantErr %v", tt.bbox, err, tt.wantErr)
			}
		})
	}
}
