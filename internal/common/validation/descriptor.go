package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"subgate/internal/common/errors"
)

// PostDescriptor is one entry of the JSON bulk-import format. Content
// carries the text body for text posts and the platform file id for
// photo and video posts; caption is optional for the latter.
type PostDescriptor struct {
	PostName    string   `json:"post_name"`
	ContentType string   `json:"content_type"`
	Content     string   `json:"content"`
	Caption     string   `json:"caption,omitempty"`
	Channels    []string `json:"channels"`
}

const descriptorSchema = `{
	"type": "array",
	"minItems": 1,
	"maxItems": 50,
	"items": {
		"type": "object",
		"additionalProperties": false,
		"required": ["post_name", "content_type", "content", "channels"],
		"properties": {
			"post_name":    {"type": "string", "minLength": 1, "maxLength": 128},
			"content_type": {"type": "string", "enum": ["text", "photo", "video"]},
			"content":      {"type": "string", "minLength": 1},
			"caption":      {"type": "string"},
			"channels": {
				"type": "array",
				"minItems": 1,
				"maxItems": 20,
				"items": {"type": "string", "pattern": "^@[A-Za-z0-9_]{4,32}$"}
			}
		}
	}
}`

var descriptorLoader = gojsonschema.NewStringLoader(descriptorSchema)

// ParseDescriptors validates raw against the import schema and decodes
// it. Schema violations come back as one INVALID_CONTENT error listing
// every failed field.
func ParseDescriptors(raw []byte) ([]PostDescriptor, error) {
	result, err := gojsonschema.Validate(descriptorLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.NewInvalidContentError(fmt.Sprintf("not valid JSON: %v", err))
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, errors.NewInvalidContentError(strings.Join(problems, "; "))
	}

	var descriptors []PostDescriptor
	if err := json.Unmarshal(raw, &descriptors); err != nil {
		return nil, errors.NewInvalidContentError(err.Error())
	}
	return descriptors, nil
}
