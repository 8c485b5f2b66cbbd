package rule

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"

	"stockpile/internal/service/inventory/domain"
)

// CELFaultInjector implements port.FaultInjector with a CEL expression over
// the task's correlation fields, e.g.
//
//	order_id == 42 || num_tokens > 50
//
// Tasks matching the rule fail before any deduction, which is how chaos
// runs drive the compensation path on demand.
type CELFaultInjector struct {
	program cel.Program
}

func NewCELFaultInjector(expression string) (*CELFaultInjector, error) {
	env, err := cel.NewEnv(
		cel.Variable("order_id", cel.IntType),
		cel.Variable("user_id", cel.IntType),
		cel.Variable("num_tokens", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create cel environment")
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), "compile fault rule")
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "build fault rule program")
	}
	return &CELFaultInjector{program: program}, nil
}

func (f *CELFaultInjector) ShouldFail(task domain.Task) (bool, error) {
	out, _, err := f.program.Eval(map[string]any{
		"order_id":   task.OrderID,
		"user_id":    task.UserID,
		"num_tokens": task.NumTokens,
	})
	if err != nil {
		return false, errors.Wrap(err, "evaluate fault rule")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("fault rule returned %T, want bool", out.Value())
	}
	return matched, nil
}
