// Package expr compiles and evaluates rule expressions with CEL.
//
// Expressions reference applicant facts through the `facts` map, e.g.
//
//	facts.income < 100000.0 && facts.age >= 60.0
//	facts["duplicate_flag"] == false
//
// Compilation (syntax + output-type check) happens at publish time so a
// malformed rule can never reach evaluation. Evaluation is pure: the same
// expression and facts always produce the same result.
package expr

import (
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	celast "github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"

	dErrors "arbiter/pkg/domain-errors"
)

// FactsVar is the single variable rule expressions may reference.
const FactsVar = "facts"

var (
	envOnce sync.Once
	env     *cel.Env
	envErr  error

	// Compiled programs keyed by expression text. Expressions inside a
	// published version never change, so the cache only grows with distinct
	// rule edits.
	programCache sync.Map
)

func celEnv() (*cel.Env, error) {
	envOnce.Do(func() {
		env, envErr = cel.NewEnv(
			cel.Variable(FactsVar, cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return env, envErr
}

// Compiled is a validated rule expression ready for evaluation.
type Compiled struct {
	Source  string
	program cel.Program
	// Fields are the fact names the expression references, sorted. Presence
	// tests (has(facts.x)) do not count as references.
	Fields []string
}

// Compile parses, type-checks, and caches an expression. The output type must
// be boolean; anything else fails with CodeValidation so publish rejects it.
func Compile(source string) (*Compiled, error) {
	if source == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "expression is required")
	}
	if cached, ok := programCache.Load(source); ok {
		return cached.(*Compiled), nil
	}

	e, err := celEnv()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "expression environment")
	}

	ast, issues := e.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, dErrors.Wrap(issues.Err(), dErrors.CodeValidation, "expression does not compile")
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"expression must produce a boolean, got %s", ast.OutputType())
	}

	program, err := e.Program(ast)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "expression does not plan")
	}

	compiled := &Compiled{Source: source, program: program, Fields: referencedFields(ast)}
	programCache.Store(source, compiled)
	return compiled, nil
}

// Eval runs the expression against a fact activation map. A runtime error
// (e.g. a type mismatch the dyn-typed facts map could not catch statically)
// is returned for the caller to record as a rule failure, never as a pass.
func (c *Compiled) Eval(activation map[string]any) (bool, error) {
	out, _, err := c.program.Eval(map[string]any{FactsVar: activation})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, dErrors.Newf(dErrors.CodeInvariantViolation,
			"expression produced %T, expected bool", out.Value())
	}
	return b, nil
}

// referencedFields walks the checked AST and collects fact names the
// expression reads, via either facts.name or facts["name"].
func referencedFields(ast *cel.Ast) []string {
	set := make(map[string]struct{})
	visitor := celast.NewExprVisitor(func(e celast.Expr) {
		switch e.Kind() {
		case celast.SelectKind:
			sel := e.AsSelect()
			if op := sel.Operand(); op.Kind() == celast.IdentKind && op.AsIdent() == FactsVar && !sel.IsTestOnly() {
				set[sel.FieldName()] = struct{}{}
			}
		case celast.CallKind:
			call := e.AsCall()
			if call.FunctionName() != operators.Index || len(call.Args()) != 2 {
				return
			}
			if idx := call.Args()[0]; idx.Kind() != celast.IdentKind || idx.AsIdent() != FactsVar {
				return
			}
			if key := call.Args()[1]; key.Kind() == celast.LiteralKind {
				if name, ok := key.AsLiteral().Value().(string); ok {
					set[name] = struct{}{}
				}
			}
		}
	})
	celast.PostOrderVisit(ast.NativeRep().Expr(), visitor)

	fields := make([]string, 0, len(set))
	for name := range set {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return fields
}
