package filter

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter wraps a compiled CEL program evaluated per event at the gate.
// When disabled (empty expression), Accept always returns true.
//
// Available variables:
//
//	text     string              raw payload as text
//	json     dyn                 payload parsed as JSON (null if not JSON)
//	headers  map(string, string) producer headers
//	size     int                 payload size in bytes
//	now_ms   int                 current time in ms
type Filter struct {
	prog    cel.Program
	enabled bool
}

// New compiles expr. An empty or whitespace expression yields a disabled
// filter.
func New(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("size", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether an expression is active.
func (f Filter) Enabled() bool { return f.enabled }

// Accept evaluates the expression against one event's payload and headers.
// Evaluation errors reject the event (a filter that cannot decide must not
// let traffic through unclassified).
func (f Filter) Accept(payload []byte, headers map[string]string) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(payload, &jsonObj)
	if headers == nil {
		headers = map[string]string{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"text":    string(payload),
		"json":    jsonObj,
		"headers": headers,
		"size":    int64(len(payload)),
		"now_ms":  time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
