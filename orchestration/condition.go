package orchestration

import (
	"fmt"
	"strconv"
	"strings"
)

// Step conditions are parsed once at workflow-build time into a small
// tagged-variant AST. The language is minimal:
//
//	<path> > <number>      numeric comparison (also <, >=, <=)
//	<path> == <value>      string equality after stripping quotes (also !=)
//	exists <path>          the path resolves to a value
//	a && b, a || b         boolean combinators, && binds tighter
//
// Anything unparseable becomes condUnknown, which always evaluates true
// so a malformed condition never blocks a workflow branch.

type condNode interface {
	eval(ec *ExecutionContext) bool
}

type condCompare struct {
	path  string
	op    string
	value string
}

type condExists struct {
	path string
}

type condAnd struct{ left, right condNode }

type condOr struct{ left, right condNode }

// condUnknown is the explicit fail-open variant for unparseable input.
type condUnknown struct {
	raw string
}

func (c condUnknown) eval(*ExecutionContext) bool { return true }

func (c condExists) eval(ec *ExecutionContext) bool {
	_, ok := ec.Resolve(c.path)
	return ok
}

func (c condAnd) eval(ec *ExecutionContext) bool {
	return c.left.eval(ec) && c.right.eval(ec)
}

func (c condOr) eval(ec *ExecutionContext) bool {
	return c.left.eval(ec) || c.right.eval(ec)
}

func (c condCompare) eval(ec *ExecutionContext) bool {
	resolved, ok := ec.Resolve(c.path)
	switch c.op {
	case "==":
		if !ok {
			return false
		}
		return stringify(resolved) == c.value
	case "!=":
		if !ok {
			return false
		}
		return stringify(resolved) != c.value
	}

	// Numeric family.
	if !ok {
		return false
	}
	left, lok := toFloat(resolved)
	right, rok := toFloat(c.value)
	if !lok || !rok {
		return false
	}
	switch c.op {
	case ">":
		return left > right
	case "<":
		return left < right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	}
	return false
}

// ParseCondition compiles a condition string. Empty input parses to a
// node that is always true.
func ParseCondition(expr string) condNode {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return condUnknown{raw: expr}
	}
	return parseOr(expr)
}

func parseOr(expr string) condNode {
	if left, right, ok := splitBinary(expr, "||"); ok {
		return condOr{left: parseOr(left), right: parseOr(right)}
	}
	return parseAnd(expr)
}

func parseAnd(expr string) condNode {
	if left, right, ok := splitBinary(expr, "&&"); ok {
		return condAnd{left: parseAnd(left), right: parseAnd(right)}
	}
	return parseLeaf(expr)
}

func splitBinary(expr, op string) (string, string, bool) {
	idx := strings.Index(expr, op)
	if idx < 0 {
		return "", "", false
	}
	left := strings.TrimSpace(expr[:idx])
	right := strings.TrimSpace(expr[idx+len(op):])
	if left == "" || right == "" {
		return "", "", false
	}
	return left, right, true
}

func parseLeaf(expr string) condNode {
	expr = strings.TrimSpace(expr)

	if rest, ok := strings.CutPrefix(expr, "exists "); ok {
		path := strings.TrimSpace(rest)
		if isPath(path) {
			return condExists{path: path}
		}
		return condUnknown{raw: expr}
	}

	// Two-character operators must be tried before their one-character
	// prefixes.
	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		idx := strings.Index(expr, op)
		if idx <= 0 {
			continue
		}
		path := strings.TrimSpace(expr[:idx])
		value := strings.TrimSpace(expr[idx+len(op):])
		value = strings.Trim(value, `'"`)
		if isPath(path) && value != "" {
			return condCompare{path: path, op: op, value: value}
		}
		return condUnknown{raw: expr}
	}

	return condUnknown{raw: expr}
}

func isPath(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		ok := r == '.' || r == '_' || r == '-' ||
			r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
		if !ok {
			return false
		}
	}
	return true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
