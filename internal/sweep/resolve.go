package sweep

// Resolve expands one rule into its ordered value sequence.
// Fails with a DefinitionError naming param if the rule has the wrong arity
// or type, or would produce no values.
func Resolve(param string, rule Rule) ([]any, error) {
	switch rule.Kind {
	case KindConstant:
		if !isNumber(rule.Value) {
			return nil, definitionErrorf(param, "constant requires a single number, got %s", describe(rule.Value))
		}
		return []any{rule.Value}, nil

	case KindManual:
		list, ok := rule.Value.([]any)
		if !ok {
			return nil, definitionErrorf(param, "manual requires a list, got %s", describe(rule.Value))
		}
		if len(list) == 0 {
			return nil, definitionErrorf(param, "manual list is empty")
		}
		out := make([]any, len(list))
		copy(out, list)
		return out, nil

	case KindLinspace:
		return resolveLinspace(param, rule.Value)

	case KindString:
		s, ok := rule.Value.(string)
		if !ok {
			return nil, definitionErrorf(param, "string requires a string literal, got %s", describe(rule.Value))
		}
		return []any{s}, nil

	case "":
		return nil, definitionErrorf(param, "missing sweep_type")

	default:
		return nil, definitionErrorf(param, "unknown sweep_type %q (want one of %v)", rule.Kind, ValidKinds)
	}
}

// resolveLinspace computes count values start + i*step, with the last value
// pinned to stop, matching the usual linspace definition.
func resolveLinspace(param string, value any) ([]any, error) {
	args, ok := value.([]any)
	if !ok || len(args) != 3 {
		return nil, definitionErrorf(param, "linspace requires [start, stop, count], got %s", describe(value))
	}

	start, ok := toFloat(args[0])
	if !ok {
		return nil, definitionErrorf(param, "linspace start must be a number, got %s", describe(args[0]))
	}
	stop, ok := toFloat(args[1])
	if !ok {
		return nil, definitionErrorf(param, "linspace stop must be a number, got %s", describe(args[1]))
	}
	count, ok := args[2].(int64)
	if !ok {
		return nil, definitionErrorf(param, "linspace count must be an integer, got %s", describe(args[2]))
	}
	if count < 1 {
		return nil, definitionErrorf(param, "linspace count must be at least 1, got %d", count)
	}

	out := make([]any, count)
	if count == 1 {
		out[0] = start
		return out, nil
	}

	step := (stop - start) / float64(count-1)
	for i := int64(0); i < count; i++ {
		out[i] = float64(i)*step + start
	}
	out[count-1] = stop
	return out, nil
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case int64, float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	}
	return "an unsupported value"
}
