package util

import (
	"encoding/json"

	"github.com/autom8ter/masedb/errors"
	"github.com/ghodss/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var validate = validator.New()

// ValidateStruct validates the struct against its `validate` tags
func ValidateStruct(val any) error {
	return errors.Wrap(validate.Struct(val), errors.Validation, "")
}

// Decode decodes the input into the output based on json tags. Duration strings such as "30s" decode into time.Duration fields.
func Decode(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput:     true,
		Result:               output,
		TagName:              "json",
		IgnoreUntaggedFields: true,
		DecodeHook:           mapstructure.StringToTimeDurationHookFunc(),
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// JSONString returns a json string of the input
func JSONString(input any) string {
	bits, _ := json.Marshal(input)
	return string(bits)
}

// YAMLToJSON converts yaml to json. JSON input is returned unchanged.
func YAMLToJSON(yamlContent []byte) ([]byte, error) {
	if isJSON(yamlContent) {
		return yamlContent, nil
	}
	return yaml.YAMLToJSON(yamlContent)
}

// JSONToYAML converts json to yaml
func JSONToYAML(jsonContent []byte) ([]byte, error) {
	return yaml.JSONToYAML(jsonContent)
}

// DecodeYAML decodes yaml or json bytes into the output based on json tags
func DecodeYAML(content []byte, output any) error {
	jsonContent, err := YAMLToJSON(content)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "invalid yaml")
	}
	data := map[string]any{}
	if err := json.Unmarshal(jsonContent, &data); err != nil {
		return errors.Wrap(err, errors.Validation, "invalid json")
	}
	return errors.Wrap(Decode(data, output), errors.Validation, "")
}

func isJSON(content []byte) bool {
	var js json.RawMessage
	return json.Unmarshal(content, &js) == nil
}
