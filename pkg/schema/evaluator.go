package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Result is the outcome of evaluating one value against one constraint set.
type Result struct {
	// OK reports whether the value satisfied every rule.
	OK bool

	// Detail describes the first failed rule. Empty when OK is true.
	Detail string
}

// Evaluator checks values against constraint sets. It is safe for concurrent
// use; compiled patterns are cached across calls.
type Evaluator struct {
	validate *validator.Validate

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewEvaluator creates an evaluator with an empty pattern cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		validate: validator.New(),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Evaluate checks a single value against a constraint set. A nil value passes
// unconditionally: presence requirements belong to the field declaration, not
// to the constraint set.
func (e *Evaluator) Evaluate(value interface{}, cs *ConstraintSet) Result {
	if value == nil || cs.IsZero() {
		return Result{OK: true}
	}

	if detail := checkType(value, cs.Type); detail != "" {
		return Result{Detail: detail}
	}

	if detail := e.checkBounds(value, cs); detail != "" {
		return Result{Detail: detail}
	}

	if cs.Pattern != "" {
		s, ok := value.(string)
		if !ok {
			return Result{Detail: fmt.Sprintf("pattern constraint requires a string, got %T", value)}
		}
		re, err := e.pattern(cs.Pattern)
		if err != nil {
			return Result{Detail: fmt.Sprintf("invalid pattern %q: %v", cs.Pattern, err)}
		}
		if !re.MatchString(s) {
			return Result{Detail: fmt.Sprintf("value %q does not match pattern %q", s, cs.Pattern)}
		}
	}

	if len(cs.Enum) > 0 {
		s := fmt.Sprintf("%v", value)
		found := false
		for _, allowed := range cs.Enum {
			if s == allowed {
				found = true
				break
			}
		}
		if !found {
			return Result{Detail: fmt.Sprintf("value %q not in enum [%s]", s, strings.Join(cs.Enum, ", "))}
		}
	}

	return Result{OK: true}
}

// EvaluateAll checks every supplied value against its constraint set and
// returns the first failure as (field, detail). Fields without a constraint
// set pass. Iteration follows the order of the fields slice so failures are
// deterministic.
func (e *Evaluator) EvaluateAll(values map[string]interface{}, fields []string, constraints map[string]*ConstraintSet) (string, Result) {
	for _, name := range fields {
		cs, ok := constraints[name]
		if !ok {
			continue
		}
		value, ok := values[name]
		if !ok {
			continue
		}
		if res := e.Evaluate(value, cs); !res.OK {
			return name, res
		}
	}
	return "", Result{OK: true}
}

// checkBounds applies length and range rules through the validator tag
// language: min/max mean string length for strings and value bounds for
// numbers, matching go-playground semantics.
func (e *Evaluator) checkBounds(value interface{}, cs *ConstraintSet) string {
	var parts []string

	switch value.(type) {
	case string:
		if cs.MinLength != nil {
			parts = append(parts, "min="+strconv.Itoa(*cs.MinLength))
		}
		if cs.MaxLength != nil {
			parts = append(parts, "max="+strconv.Itoa(*cs.MaxLength))
		}
	default:
		if _, numeric := toFloat(value); numeric {
			if cs.Min != nil {
				parts = append(parts, "min="+formatBound(*cs.Min))
			}
			if cs.Max != nil {
				parts = append(parts, "max="+formatBound(*cs.Max))
			}
		}
	}

	if len(parts) == 0 {
		return ""
	}

	if err := e.validate.Var(value, strings.Join(parts, ",")); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Sprintf("value %v violates %s=%s", value, fe.Tag(), fe.Param())
		}
		return err.Error()
	}
	return ""
}

func (e *Evaluator) pattern(expr string) (*regexp.Regexp, error) {
	e.mu.RLock()
	re, ok := e.patterns[expr]
	e.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.patterns[expr] = re
	e.mu.Unlock()
	return re, nil
}

// checkType verifies the primitive shape of a value. JSON decoding turns all
// numbers into float64, so TypeInt accepts whole floats.
func checkType(value interface{}, t ValueType) string {
	switch t {
	case TypeAny:
		return ""
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
	case TypeInt:
		f, numeric := toFloat(value)
		if !numeric || f != float64(int64(f)) {
			return fmt.Sprintf("expected integer, got %T(%v)", value, value)
		}
	case TypeFloat:
		if _, numeric := toFloat(value); !numeric {
			return fmt.Sprintf("expected number, got %T", value)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected bool, got %T", value)
		}
	case TypeList:
		if !isList(value) {
			return fmt.Sprintf("expected list, got %T", value)
		}
	case TypeMap:
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Sprintf("expected map, got %T", value)
		}
	default:
		return fmt.Sprintf("unknown value type %q", t)
	}
	return ""
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func isList(value interface{}) bool {
	switch value.(type) {
	case []interface{}, []string, []int, []float64, []bool:
		return true
	default:
		return false
	}
}

func formatBound(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
