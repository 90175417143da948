package services

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Condition is a compiled workflow condition. Programs are thread-safe, so
// one Condition can be evaluated concurrently by the engine.
type Condition struct {
	prg cel.Program
}

var celEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("automation: cel env: %v", err))
	}
	return env
}()

// CompileCondition compiles a CEL expression over the `record` payload map.
// An empty expression compiles to an always-true condition.
func CompileCondition(expr string) (*Condition, error) {
	if expr == "" {
		return &Condition{}, nil
	}

	ast, iss := celEnv.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("condition must evaluate to a boolean, got %s", ast.OutputType())
	}

	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, err
	}
	return &Condition{prg: prg}, nil
}

// Matches evaluates the condition against a record payload. Evaluation
// errors (missing keys, type mismatches at runtime) count as no match.
func (c *Condition) Matches(payload map[string]any) bool {
	if c.prg == nil {
		return true
	}
	if payload == nil {
		payload = map[string]any{}
	}
	out, _, err := c.prg.Eval(map[string]any{"record": payload})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
