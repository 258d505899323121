package definition

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/entitykit/entitykit/pkg/entity"
)

// ScriptEngine executes Starlark action bodies with a wall-clock timeout.
type ScriptEngine struct {
	timeout time.Duration
}

// ScriptResult carries a script's outputs: the value of the `result` global,
// the `updates` mapping to apply to the entity, and the execution time.
type ScriptResult struct {
	Result        interface{}
	Updates       map[string]interface{}
	ExecutionTime time.Duration
}

// NewScriptEngine creates a script engine. A zero timeout means 30 seconds.
func NewScriptEngine(timeout time.Duration) *ScriptEngine {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ScriptEngine{timeout: timeout}
}

// Evaluate runs a script with the given globals. The script's `result` and
// `updates` globals become the outputs; all other globals are discarded.
func (se *ScriptEngine) Evaluate(ctx context.Context, script string, input map[string]interface{}) (*ScriptResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	resultCh := make(chan *ScriptResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		return nil, fmt.Errorf("script execution timeout after %v", se.timeout)
	case err := <-errCh:
		return nil, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

func (se *ScriptEngine) evaluateSync(script string, input map[string]interface{}) (*ScriptResult, error) {
	thread := &starlark.Thread{
		Name: "entitykit",
		Print: func(_ *starlark.Thread, msg string) {
			// Scripts have no stdout.
		},
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	for key, val := range input {
		starlarkVal, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert input %s: %w", key, err)
		}
		predeclared[key] = starlarkVal
	}

	globals, err := starlark.ExecFile(thread, "action.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}

	out := &ScriptResult{}
	if v, ok := globals["result"]; ok {
		goVal, err := fromStarlarkValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert result: %w", err)
		}
		out.Result = goVal
	}
	if v, ok := globals["updates"]; ok {
		goVal, err := fromStarlarkValue(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert updates: %w", err)
		}
		updates, ok := goVal.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("updates must be a dict, got %T", goVal)
		}
		out.Updates = updates
	}
	return out, nil
}

// Body wraps a script into an action body: the script sees the entity's data
// mapping and the call parameters, and its `updates` mapping is applied back
// to the entity before the `result` value is returned.
func (se *ScriptEngine) Body(script string) entity.ActionFunc {
	return func(e *entity.Entity, params map[string]interface{}) (interface{}, error) {
		if params == nil {
			params = map[string]interface{}{}
		}
		res, err := se.Evaluate(context.Background(), script, map[string]interface{}{
			"entity": e.Data(),
			"params": params,
		})
		if err != nil {
			return nil, err
		}
		if len(res.Updates) > 0 {
			if err := e.Update(res.Updates); err != nil {
				return nil, err
			}
		}
		return res.Result, nil
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			starlarkVal, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return int(i), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			goVal, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = goVal
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
