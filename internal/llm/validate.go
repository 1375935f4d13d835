package llm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compiled schemas keyed by the sha256 of their JSON form
var schemaCache sync.Map

func compiledSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("encode invoice schema: %w", err)
	}
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])
	if s, ok := schemaCache.Load(key); ok {
		return s.(*jsonschema.Schema), nil
	}

	url := "mem://invoice/" + key + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load invoice schema: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile invoice schema: %w", err)
	}
	actual, _ := schemaCache.LoadOrStore(key, s)
	return actual.(*jsonschema.Schema), nil
}

// ValidateJSONAgainstSchema checks a model payload against the invoice
// schema. Compiled schemas are reused across calls.
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	s, err := compiledSchema(schemaMap)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("payload is not json: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("payload violates invoice schema: %w", err)
	}
	return nil
}
