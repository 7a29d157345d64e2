package dispatch

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/relay/internal/broker"
)

// Filter wraps a compiled CEL program evaluated per delivered message.
// The zero value matches everything.
//
// Variables: text (string payload), json (parsed payload or null), size,
// ts_ms, now_ms, topic.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// NewFilter compiles expr. An empty expression yields a pass-all filter.
func NewFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("json", cel.DynType),
		cel.Variable("size", cel.IntType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
		cel.Variable("topic", cel.StringType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Enabled reports whether an expression was compiled.
func (f Filter) Enabled() bool { return f.enabled }

// Match evaluates the filter. Evaluation errors and non-bool results count
// as no match.
func (f Filter) Match(topic string, msg broker.Message) bool {
	if !f.enabled {
		return true
	}
	var doc any
	_ = json.Unmarshal(msg.Payload, &doc)
	out, _, err := f.prog.Eval(map[string]any{
		"text":   string(msg.Payload),
		"json":   doc,
		"size":   int64(len(msg.Payload)),
		"ts_ms":  msg.Timestamp,
		"now_ms": time.Now().UnixMilli(),
		"topic":  topic,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
