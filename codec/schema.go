package codec

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/trajstream/errors"
)

const trajectoryInfoSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "timeStepSize": {"type": "number", "minimum": 0},
    "totalSteps": {"type": "integer", "minimum": 0},
    "size": {
      "type": "object",
      "properties": {
        "x": {"type": "number"},
        "y": {"type": "number"},
        "z": {"type": "number"}
      }
    },
    "typeMapping": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {"name": {"type": "string"}}
      }
    }
  }
}`

var (
	infoSchemaOnce sync.Once
	infoSchema     *gojsonschema.Schema
	infoSchemaErr  error
)

// ValidateTrajectoryInfo checks a trajectory info block against its JSON
// schema. Unknown fields are allowed.
func ValidateTrajectoryInfo(raw []byte) error {
	infoSchemaOnce.Do(func() {
		infoSchema, infoSchemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(trajectoryInfoSchema))
	})
	if infoSchemaErr != nil {
		return errors.WrapFatal(infoSchemaErr, "codec", "ValidateTrajectoryInfo", "compile schema")
	}

	result, err := infoSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.WrapFormat(err, "codec", "ValidateTrajectoryInfo", "parse trajectory info")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return errors.WrapFormat(fmt.Errorf("%s", strings.Join(msgs, "; ")),
			"codec", "ValidateTrajectoryInfo", "validate trajectory info")
	}
	return nil
}
