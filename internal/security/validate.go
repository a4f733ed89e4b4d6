package security

import (
	"fmt"
	"regexp"
)

// dangerousPatterns catches content that has no business in instruction
// text or agent prose: NUL/control bytes, and common shell/SQL
// metacharacter sequences associated with injection attempts downstream
// (spec §4.2 step 4 "denylist"). This is a defense-in-depth belt, not a
// parser — it rejects obviously hostile payloads rather than attempting
// to be a general WAF.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`),
	regexp.MustCompile("(?i)\\$\\(.*\\)"),
	regexp.MustCompile("(?i);\\s*(rm|drop|delete|exec|shutdown)\\b"),
	regexp.MustCompile("(?i)\\b(union\\s+select|drop\\s+table|--\\s*$)"),
	regexp.MustCompile("`[^`]*`"),
}

// Validate checks args against schema: required fields present, types
// match, strings within length caps, arrays within item caps, free-text
// fields clear of dangerousPatterns, and the whole tree within
// MaxJSONDepth. It returns an apperr.InvalidArgument on the first
// violation found.
func Validate(schema Schema, args map[string]any) error {
	if depth := jsonDepth(args, 0); depth > MaxJSONDepth {
		return errInvalidArgument("arguments nested too deeply (%d > %d)", depth, MaxJSONDepth)
	}

	for _, f := range schema.Fields {
		v, present := args[f.Name]
		if !present || v == nil {
			if f.Required {
				return errInvalidArgument("missing required argument %q", f.Name)
			}
			continue
		}
		if err := validateField(f, v); err != nil {
			return err
		}
	}
	return nil
}

func validateField(f Field, v any) error {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return errInvalidArgument("argument %q must be a string", f.Name)
		}
		maxLen := f.MaxLen
		if maxLen == 0 {
			maxLen = MaxStringLen
		}
		if len(s) > maxLen {
			return errInvalidArgument("argument %q exceeds max length %d", f.Name, maxLen)
		}
		if f.FreeText {
			for _, re := range dangerousPatterns {
				if re.MatchString(s) {
					return errInvalidArgument("argument %q contains disallowed content", f.Name)
				}
			}
		}

	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
		default:
			return errInvalidArgument("argument %q must be a number", f.Name)
		}

	case TypeBool:
		if _, ok := v.(bool); !ok {
			return errInvalidArgument("argument %q must be a bool", f.Name)
		}

	case TypeArray:
		arr, ok := v.([]any)
		if !ok {
			return errInvalidArgument("argument %q must be an array", f.Name)
		}
		maxItems := f.MaxItems
		if maxItems == 0 {
			maxItems = MaxCollectionLen
		}
		if len(arr) > maxItems {
			return errInvalidArgument("argument %q exceeds max items %d", f.Name, maxItems)
		}
		if f.Elem != nil {
			for i, elem := range arr {
				m, ok := elem.(map[string]any)
				if !ok {
					return errInvalidArgument("argument %q[%d] must be an object", f.Name, i)
				}
				if err := Validate(*f.Elem, m); err != nil {
					return fmt.Errorf("%s[%d]: %w", f.Name, i, err)
				}
			}
		}

	case TypeObject:
		if _, ok := v.(map[string]any); !ok {
			return errInvalidArgument("argument %q must be an object", f.Name)
		}

	default:
		return errInvalidArgument("argument %q has unknown schema type %q", f.Name, f.Type)
	}
	return nil
}

// jsonDepth walks a decoded JSON value (map[string]any / []any / scalar)
// and returns its maximum nesting depth.
func jsonDepth(v any, depth int) int {
	if depth > MaxJSONDepth*2 {
		// Already far past the limit; stop recursing to bound cost on
		// adversarial input instead of walking the whole tree.
		return depth
	}
	switch t := v.(type) {
	case map[string]any:
		max := depth
		for _, child := range t {
			if d := jsonDepth(child, depth+1); d > max {
				max = d
			}
		}
		return max
	case []any:
		max := depth
		for _, child := range t {
			if d := jsonDepth(child, depth+1); d > max {
				max = d
			}
		}
		return max
	default:
		return depth
	}
}
