package executor

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// EvaluateCondition runs a CONDITION node's javascript predicate. The
// expression sees the upstream outputs as `$`, keyed by node id, e.g.
// `$.checkStock.output.quantity > 0`. A non-boolean result is an error
// surfaced to the workflow author, not coerced.
func EvaluateCondition(expression string, upstreamOutputs map[string]any) (bool, error) {
	if len(expression) == 0 {
		return false, fmt.Errorf("condition node has empty expression")
	}
	data, err := json.Marshal(upstreamOutputs)
	if err != nil {
		return false, err
	}
	script := fmt.Sprintf("var $ = %s;\n(%s)", data, expression)
	vm := goja.New()
	val, err := vm.RunString(script)
	if err != nil {
		return false, fmt.Errorf("error executing condition expression %w", err)
	}
	result, ok := val.Export().(bool)
	if !ok {
		return false, fmt.Errorf("condition expression did not evaluate to a boolean: %v", val.Export())
	}
	return result, nil
}
