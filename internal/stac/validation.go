package stac

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dylanlee/wncat/pkg/geojson"
)

// ErrInvalidDocument is wrapped by every validation failure.
var ErrInvalidDocument = errors.New("invalid STAC document")

// DocumentKind names the three STAC document types.
type DocumentKind string

const (
	KindItem       DocumentKind = "item"
	KindCollection DocumentKind = "collection"
	KindCatalog    DocumentKind = "catalog"
)

// ValidationError lists the schema problems found in one document.
type ValidationError struct {
	Kind     DocumentKind
	ID       string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q failed validation: %s", e.Kind, e.ID, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDocument
}

// Validator checks documents against the STAC JSON schemas. Schemas are
// compiled on first use and reused for the lifetime of the Validator.
type Validator struct {
	loaders map[DocumentKind]gojsonschema.JSONLoader
	schemas map[DocumentKind]*gojsonschema.Schema
}

// NewValidator creates a validator for the schemas published under baseURL,
// e.g. https://schemas.stacspec.org/v1.0.0.
func NewValidator(baseURL string) *Validator {
	baseURL = strings.TrimRight(baseURL, "/")
	return NewValidatorWithLoaders(map[DocumentKind]gojsonschema.JSONLoader{
		KindItem:       gojsonschema.NewReferenceLoader(baseURL + "/item-spec/json-schema/item.json"),
		KindCollection: gojsonschema.NewReferenceLoader(baseURL + "/collection-spec/json-schema/collection.json"),
		KindCatalog:    gojsonschema.NewReferenceLoader(baseURL + "/catalog-spec/json-schema/catalog.json"),
	})
}

// NewValidatorWithLoaders creates a validator from explicit schema loaders.
// Kinds without a loader are only checked structurally.
func NewValidatorWithLoaders(loaders map[DocumentKind]gojsonschema.JSONLoader) *Validator {
	return &Validator{
		loaders: loaders,
		schemas: make(map[DocumentKind]*gojsonschema.Schema),
	}
}

// ValidateItem validates an item's bbox and geometry, then its schema.
func (v *Validator) ValidateItem(item *Item) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidDocument)
	}

	var problems []string
	if len(item.Bbox) > 0 {
		if err := ValidateBBox(item.Bbox); err != nil {
			problems = append(problems, "bbox: "+err.Error())
		}
	}
	if g, ok := item.Geometry.(*geojson.Geometry); ok && g != nil && len(item.Bbox) == 4 {
		computed, err := g.BBox()
		if err != nil {
			problems = append(problems, "geometry: "+err.Error())
		} else if !geojson.BBoxEqual(computed, item.Bbox, 1e-9) {
			problems = append(problems, fmt.Sprintf("geometry envelope %v does not match bbox %v", computed, item.Bbox))
		}
	}

	schemaProblems, err := v.validate(KindItem, item)
	if err != nil {
		return err
	}
	problems = append(problems, schemaProblems...)

	if len(problems) > 0 {
		return &ValidationError{Kind: KindItem, ID: item.Id, Problems: problems}
	}
	return nil
}

// ValidateCollection validates a collection against the collection schema.
func (v *Validator) ValidateCollection(collection *Collection) error {
	if collection == nil {
		return fmt.Errorf("%w: collection is nil", ErrInvalidDocument)
	}
	problems, err := v.validate(KindCollection, collection)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return &ValidationError{Kind: KindCollection, ID: collection.Id, Problems: problems}
	}
	return nil
}

// ValidateCatalog validates a catalog against the catalog schema.
func (v *Validator) ValidateCatalog(catalog *Catalog) error {
	if catalog == nil {
		return fmt.Errorf("%w: catalog is nil", ErrInvalidDocument)
	}
	problems, err := v.validate(KindCatalog, catalog)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return &ValidationError{Kind: KindCatalog, ID: catalog.Id, Problems: problems}
	}
	return nil
}

func (v *Validator) validate(kind DocumentKind, doc any) ([]string, error) {
	schema, err := v.schema(kind)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s for validation: %w", kind, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return problems, nil
}

func (v *Validator) schema(kind DocumentKind) (*gojsonschema.Schema, error) {
	if schema, ok := v.schemas[kind]; ok {
		return schema, nil
	}
	loader, ok := v.loaders[kind]
	if !ok || loader == nil {
		return nil, nil
	}
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s schema: %w", kind, err)
	}
	v.schemas[kind] = schema
	return schema, nil
}

// ValidateBBox validates a WGS84 bounding box of 4 or 6 values.
func ValidateBBox(bbox []float64) error {
	if len(bbox) != 4 && len(bbox) != 6 {
		return fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bbox))
	}

	// [west, south, east, north] or [west, south, min_elev, east, north, max_elev]
	half := len(bbox) / 2
	west, south := bbox[0], bbox[1]
	east, north := bbox[half], bbox[half+1]

	if west < -180 || west > 180 {
		return fmt.Errorf("west longitude must be between -180 and 180, got %f", west)
	}
	if east < -180 || east > 180 {
		return fmt.Errorf("east longitude must be between -180 and 180, got %f", east)
	}
	if south < -90 || south > 90 {
		return fmt.Errorf("south latitude must be between -90 and 90, got %f", south)
	}
	if north < -90 || north > 90 {
		return fmt.Errorf("north latitude must be between -90 and 90, got %f", north)
	}
	if west > east {
		return fmt.Errorf("west longitude (%f) must be less than or equal to east longitude (%f)", west, east)
	}
	if south > north {
		return fmt.Errorf("south latitude (%f) must be less than or equal to north latitude (%f)", south, north)
	}
	if len(bbox) == 6 && bbox[2] > bbox[5] {
		return fmt.Errorf("minimum elevation (%f) must be less than or equal to maximum elevation (%f)", bbox[2], bbox[5])
	}

	return nil
}
