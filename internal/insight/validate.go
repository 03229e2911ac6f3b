package insight

import "fmt"

// ValidateOptions checks values against a plugin's declared OptionSpecs:
// every key in values must name a declared option, and its value must
// satisfy that option's Kind (a bool for Boolean, a number within
// [Min,Max] for Number, a string for String, a declared member of Values
// for Option). Button takes no meaningful value and is never required.
func ValidateOptions(specs []OptionSpec, values map[string]any) error {
	byName := make(map[string]OptionSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	for name, v := range values {
		spec, ok := byName[name]
		if !ok {
			return fmt.Errorf("insight: unknown option %q", name)
		}
		if err := validateOne(spec, v); err != nil {
			return fmt.Errorf("insight: option %q: %w", name, err)
		}
	}
	return nil
}

func validateOne(spec OptionSpec, v any) error {
	switch spec.Kind {
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("expected a boolean, got %T", v)
		}
	case KindNumber:
		n, ok := asFloat64(v)
		if !ok {
			return fmt.Errorf("expected a number, got %T", v)
		}
		if spec.Min != 0 || spec.Max != 0 {
			if n < spec.Min || n > spec.Max {
				return fmt.Errorf("%v out of range [%v, %v]", n, spec.Min, spec.Max)
			}
		}
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
	case KindOption:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		found := false
		for _, allowed := range spec.Values {
			if allowed == s {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%q is not one of %v", s, spec.Values)
		}
	case KindButton:
		// No value to validate; a button option is a trigger, not data.
	default:
		return fmt.Errorf("unknown option kind %v", spec.Kind)
	}
	return nil
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
