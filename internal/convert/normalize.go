package convert

import (
	"fmt"
	"strconv"
	"time"

	"github.com/facet-dev/facet/internal/entity"
)

const dateLayout = "2006-01-02"

// normalizeForTransport converts a property value to its wire form: times
// become ISO strings, related records become their opaque identifier token,
// everything else passes through.
func normalizeForTransport(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *entity.Record:
		if v == nil {
			return nil
		}
		return v.ID()
	default:
		return value
	}
}

// coerceForProperty converts an incoming wire value to the property's
// declared type. Date/time targets parse strings, numeric targets coerce
// JSON numbers and numeric strings; all other values are set as-is,
// including nil.
func coerceForProperty(prop *entity.Property, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch prop.Kind {
	case entity.PropTime:
		if s, ok := value.(string); ok {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("property %s: invalid timestamp %q: %w", prop.Name, s, err)
			}
			return t, nil
		}
	case entity.PropDate:
		if s, ok := value.(string); ok {
			t, err := time.Parse(dateLayout, s)
			if err != nil {
				return nil, fmt.Errorf("property %s: invalid date %q: %w", prop.Name, s, err)
			}
			return t, nil
		}
	case entity.PropInt:
		switch v := value.(type) {
		case float64:
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("property %s: invalid integer %q: %w", prop.Name, v, err)
			}
			return n, nil
		}
	case entity.PropFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("property %s: invalid number %q: %w", prop.Name, v, err)
			}
			return f, nil
		}
	}

	return value, nil
}
