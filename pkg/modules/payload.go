package modules

import (
	"encoding/json"
	"fmt"
)

// Payload is the argument of an operation, usually decoded from a JSON
// request body
type Payload map[string]interface{}

// Decode converts the payload into v by way of its JSON form
func (p Payload) Decode(v interface{}) error {
	if p == nil {
		p = Payload{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// String returns the named string field, or "" when absent or not a string
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

func (p Payload) require(keys ...string) error {
	for _, k := range keys {
		if p.String(k) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidPayload, k)
		}
	}
	return nil
}
