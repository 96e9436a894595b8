package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported scan type %T", value)
	}
}

// jsonValue marshals v as a JSON text value so it binds to jsonb and to
// sqlite text columns alike.
func jsonValue(v any) (driver.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func scanJSON(value interface{}, dest any) error {
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// StringList stores a list of strings as a JSON array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return jsonValue([]string{})
	}
	return jsonValue([]string(l))
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var decoded []string
	if err := scanJSON(value, &decoded); err != nil {
		return fmt.Errorf("StringList: %w", err)
	}
	*l = decoded
	return nil
}

// Contains reports whether the list holds value.
func (l StringList) Contains(value string) bool {
	for _, item := range l {
		if item == value {
			return true
		}
	}
	return false
}

// StringMap stores flat string arguments, e.g. notification template args.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return jsonValue(map[string]string{})
	}
	return jsonValue(map[string]string(m))
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}
	decoded := map[string]string{}
	if err := scanJSON(value, &decoded); err != nil {
		return fmt.Errorf("StringMap: %w", err)
	}
	*m = decoded
	return nil
}
