package engine

// Step places a single module operator in a [Chain].
type Step struct {
	Module       Module
	OperatorName string
	Args         Arguments
}

func NewStep(module Module, operatorName string, args Arguments) *Step {
	return &Step{
		Module:       module,
		OperatorName: operatorName,
		Args:         args,
	}
}

// Chain runs its steps in order against a shared state.
type Chain struct {
	name  string
	steps []*Step
}

func NewChain(name string, steps ...*Step) *Chain {
	return &Chain{
		name:  name,
		steps: steps,
	}
}

func (ch Chain) Name() string {
	return ch.name
}

func (ch Chain) Len() int {
	return len(ch.steps)
}

// Executer returns an executer running every step of the chain. The given
// middleware wraps each step.
func (ch Chain) Executer(mw ...Middleware) ExecuterFunc {
	steps := ch.steps

	return func(c Context, p *Params) *Response {
		inv := NewInvoker(c)
		inv.Use(mw...)

		for _, step := range steps {
			op, err := step.Module.Operator(step.OperatorName)
			if err != nil {
				return ErrorResponse(inv.State(), err)
			}

			// steps are shared between executions, so each call gets its own arguments
			stepParams := DefaultParams()
			stepParams.Step = step.OperatorName
			for k, v := range step.Args {
				stepParams.SetArgument(k, v)
			}

			if err := inv.Call(op, stepParams); err != nil {
				return ErrorResponse(inv.State(), err)
			}
		}

		return &Response{State: inv.State()}
	}
}
