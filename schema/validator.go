// Package hitschema validates raw search provider results before normalization.
package hitschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed search_hit.schema.json
var searchHitSchemaJSON string

// SearchHit is a schema-validated provider result.
type SearchHit struct {
	URL           string   `json:"url"`
	Title         *string  `json:"title,omitempty"`
	Content       *string  `json:"content,omitempty"`
	RawContent    *string  `json:"raw_content,omitempty"`
	PublishedDate *string  `json:"published_date,omitempty"`
	Score         *float64 `json:"score,omitempty"`
}

// PublishedLayouts are the timestamp formats accepted for published_date.
var PublishedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 02 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSearchHit decodes payload strictly, validates it against the embedded
// schema and checks field semantics the schema cannot express.
func ValidateSearchHit(payload json.RawMessage) (*SearchHit, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode hit JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var hit SearchHit
	if err := json.Unmarshal(payload, &hit); err != nil {
		return nil, fmt.Errorf("unmarshal hit: %w", err)
	}
	if err := validateSemantics(&hit); err != nil {
		return nil, err
	}
	return &hit, nil
}

// ParsePublished parses a provider timestamp using PublishedLayouts.
func ParsePublished(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range PublishedLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("search_hit.schema.json", strings.NewReader(searchHitSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("search_hit.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateSemantics(hit *SearchHit) error {
	parsed, err := url.ParseRequestURI(strings.TrimSpace(hit.URL))
	if err != nil {
		return fmt.Errorf("url is not a valid URI: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("url host must not be empty")
	}

	if hit.PublishedDate != nil && strings.TrimSpace(*hit.PublishedDate) != "" {
		if _, ok := ParsePublished(*hit.PublishedDate); !ok {
			return fmt.Errorf("published_date %q is not a recognized timestamp", *hit.PublishedDate)
		}
	}
	return nil
}
