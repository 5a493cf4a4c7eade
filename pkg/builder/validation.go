package builder

import (
	"fmt"
	"regexp"
)

var variableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validTransformSteps enumerates the step kinds accepted in a transform
// node's config["transformations"] array (distinct from the top-level
// config["type"] dispatch ValidateTransformConfig checks, which selects
// the transform node's overall execution strategy).
var validTransformSteps = map[string]bool{
	"map":     true,
	"filter":  true,
	"extract": true,
	"format":  true,
}

var validDelayUnits = map[string]bool{
	"":   true,
	"ms": true,
	"s":  true,
	"m":  true,
	"h":  true,
}

// ValidateHTTPConfig validates HTTP node configuration.
func ValidateHTTPConfig(config map[string]any) error {
	// Check required fields
	if _, ok := config["method"]; !ok {
		return fmt.Errorf("HTTP node requires 'method' field")
	}

	if _, ok := config["url"]; !ok {
		return fmt.Errorf("HTTP node requires 'url' field")
	}

	return nil
}

// ValidateLLMConfig validates LLM node configuration.
func ValidateLLMConfig(config map[string]any) error {
	// Check required fields
	requiredFields := []string{"provider", "model", "prompt", "api_key"}
	for _, field := range requiredFields {
		if _, ok := config[field]; !ok {
			return fmt.Errorf("LLM node requires '%s' field", field)
		}
	}

	// Validate temperature if present
	if temp, ok := config["temperature"].(float64); ok {
		if temp < 0 || temp > 2 {
			return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
		}
	}

	// Validate top_p if present
	if topP, ok := config["top_p"].(float64); ok {
		if topP < 0 || topP > 1 {
			return fmt.Errorf("top_p must be between 0 and 1, got %f", topP)
		}
	}

	// Validate max_tokens if present
	if maxTokens, ok := config["max_tokens"].(int); ok {
		if maxTokens < 0 {
			return fmt.Errorf("max_tokens must be >= 0, got %d", maxTokens)
		}
	}

	return nil
}

// ValidateTransformConfig validates Transform node configuration.
func ValidateTransformConfig(config map[string]any) error {
	// Check required field
	transformType, ok := config["type"]
	if !ok {
		return fmt.Errorf("Transform node requires 'type' field")
	}

	typeStr, ok := transformType.(string)
	if !ok {
		return fmt.Errorf("Transform 'type' must be a string")
	}

	// Validate type-specific requirements
	switch typeStr {
	case "passthrough":
		// No additional fields required
	case "expression":
		if _, ok := config["expression"]; !ok {
			return fmt.Errorf("Expression transform requires 'expression' field")
		}
	case "jq":
		if _, ok := config["filter"]; !ok {
			return fmt.Errorf("JQ transform requires 'filter' field")
		}
	case "template":
		if _, ok := config["template"]; !ok {
			return fmt.Errorf("Template transform requires 'template' field")
		}
	default:
		return fmt.Errorf("invalid transform type: %s", typeStr)
	}

	return nil
}

// ValidateDelayConfig validates delay node configuration.
func ValidateDelayConfig(config map[string]any) error {
	duration, ok := config["duration"]
	if !ok {
		return fmt.Errorf("Delay node requires 'duration' field")
	}

	var durationVal float64
	switch v := duration.(type) {
	case float64:
		durationVal = v
	case int:
		durationVal = float64(v)
	default:
		return fmt.Errorf("Delay 'duration' must be a number")
	}
	if durationVal <= 0 {
		return fmt.Errorf("Delay 'duration' must be > 0, got %v", durationVal)
	}

	if unit, ok := config["unit"]; ok {
		unitStr, ok := unit.(string)
		if !ok {
			return fmt.Errorf("Delay 'unit' must be a string")
		}
		if !validDelayUnits[unitStr] {
			return fmt.Errorf("invalid delay unit: %s (expected ms, s, m, or h)", unitStr)
		}
	}

	return nil
}

// ValidateSetVariableConfig validates set-variable node configuration.
func ValidateSetVariableConfig(config map[string]any) error {
	name, ok := config["name"]
	if !ok {
		return fmt.Errorf("set-variable node requires 'name' field")
	}
	nameStr, ok := name.(string)
	if !ok || !variableNamePattern.MatchString(nameStr) {
		return fmt.Errorf("set-variable 'name' must be a valid identifier, got %v", name)
	}
	if scope, ok := config["scope"]; ok {
		scopeStr, ok := scope.(string)
		if !ok || (scopeStr != "global" && scopeStr != "local") {
			return fmt.Errorf("set-variable 'scope' must be 'global' or 'local'")
		}
	}
	return nil
}

// ValidateBranchConfig validates branch node configuration.
func ValidateBranchConfig(config map[string]any) error {
	if _, ok := config["condition"]; !ok {
		return fmt.Errorf("branch node requires 'condition' field")
	}
	return nil
}

// ValidateLoopConfig validates loop node configuration.
func ValidateLoopConfig(config map[string]any) error {
	loopType, ok := config["loopType"]
	if !ok {
		return fmt.Errorf("loop node requires 'loopType' field")
	}
	loopTypeStr, ok := loopType.(string)
	if !ok {
		return fmt.Errorf("loop 'loopType' must be a string")
	}
	switch loopTypeStr {
	case "forEach":
		if _, ok := config["items"]; !ok {
			return fmt.Errorf("forEach loop requires 'items' field")
		}
	case "while":
		if _, ok := config["condition"]; !ok {
			return fmt.Errorf("while loop requires 'condition' field")
		}
	default:
		return fmt.Errorf("invalid loopType: %s (expected forEach or while)", loopTypeStr)
	}
	return nil
}

// ValidateRetryConfig validates retry node configuration.
func ValidateRetryConfig(config map[string]any) error {
	if _, ok := config["action"]; !ok {
		return fmt.Errorf("retry node requires 'action' field")
	}
	if maxAttempts, ok := config["maxAttempts"]; ok {
		switch v := maxAttempts.(type) {
		case float64:
			if v < 1 {
				return fmt.Errorf("retry 'maxAttempts' must be >= 1, got %v", v)
			}
		case int:
			if v < 1 {
				return fmt.Errorf("retry 'maxAttempts' must be >= 1, got %v", v)
			}
		default:
			return fmt.Errorf("retry 'maxAttempts' must be a number")
		}
	}
	return nil
}

// ValidateTransformSteps validates the optional transformations[] step
// array on a transform node, independent of the type-dispatched
// validation in ValidateTransformConfig.
func ValidateTransformSteps(config map[string]any) error {
	steps, ok := config["transformations"]
	if !ok {
		return nil
	}
	stepList, ok := steps.([]any)
	if !ok {
		return fmt.Errorf("'transformations' must be an array")
	}
	for i, step := range stepList {
		stepMap, ok := step.(map[string]any)
		if !ok {
			return fmt.Errorf("transformations[%d] must be an object", i)
		}
		kind, ok := stepMap["kind"]
		if !ok {
			return fmt.Errorf("transformations[%d] requires 'kind' field", i)
		}
		kindStr, ok := kind.(string)
		if !ok || !validTransformSteps[kindStr] {
			return fmt.Errorf("transformations[%d] has invalid kind: %v (expected map, filter, extract, or format)", i, kind)
		}
	}
	return nil
}

// ValidateNodeConfig validates node configuration based on node type.
// No execution path in this module calls it; StrictMode does not invoke it.
func ValidateNodeConfig(nodeType string, config map[string]any) error {
	switch nodeType {
	case "http":
		return ValidateHTTPConfig(config)
	case "llm":
		return ValidateLLMConfig(config)
	case "transform":
		if err := ValidateTransformConfig(config); err != nil {
			return err
		}
		return ValidateTransformSteps(config)
	case "delay":
		return ValidateDelayConfig(config)
	case "set-variable":
		return ValidateSetVariableConfig(config)
	case "branch":
		return ValidateBranchConfig(config)
	case "loop":
		return ValidateLoopConfig(config)
	case "retry":
		return ValidateRetryConfig(config)
	default:
		// Unknown types are accepted: they may be handled by a
		// connector registered outside this package.
		return nil
	}
}
