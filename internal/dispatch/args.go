package dispatch

import "github.com/evocrew/evocrew/internal/apperr"

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func argStringPtr(args map[string]any, key string) *string {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func argFloat(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argObject(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}

func argArray(args map[string]any, key string) []any {
	if v, ok := args[key].([]any); ok {
		return v
	}
	return nil
}

func requireString(args map[string]any, key string) (string, error) {
	s := argString(args, key)
	if s == "" {
		return "", apperr.New(apperr.InvalidArgument, "missing required argument %q", key)
	}
	return s, nil
}
