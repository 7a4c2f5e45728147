package dice

// Roller evaluates dice expressions against a Source.
type Roller struct {
	src Source
}

// New returns a Roller drawing from src, or from DefaultSource when src is
// nil.
func New(src Source) *Roller {
	if src == nil {
		src = DefaultSource
	}
	return &Roller{src: src}
}

var std = New(nil)

// Evaluate recognizes, resolves and rolls expr. It returns ErrNotDice or
// ErrInvalidDiceSize when expr yields no result.
func (r *Roller) Evaluate(expr string) (Result, error) {
	fields, ok := Recognize(expr)
	if !ok {
		return Result{}, ErrNotDice
	}
	spec, err := Resolve(fields)
	if err != nil {
		return Result{}, err
	}
	return r.run(spec), nil
}

// run rolls a spec produced by Resolve.
func (r *Roller) run(spec Spec) Result {
	res := Result{
		Spec:       spec,
		Iterations: make([]Iteration, spec.Repeat),
	}
	for i := range res.Iterations {
		var it Iteration
		if spec.Versus() {
			a := RollDie(r.src, spec.DiceSize, spec.Reroll)
			b := RollDie(r.src, spec.DiceSize, spec.Reroll)
			it = versus(spec, a, b)
		} else {
			rolls := make([]Roll, spec.NumDice)
			for j := range rolls {
				rolls[j] = RollDie(r.src, spec.DiceSize, spec.Reroll)
			}
			it = group(spec, rolls)
		}
		res.Iterations[i] = it
		res.Total += it.Sum
	}
	return res
}

// Eval renders expr, reporting false when expr is not a dice expression.
func (r *Roller) Eval(expr string) (string, bool) {
	res, err := r.Evaluate(expr)
	if err != nil {
		return "", false
	}
	return res.String(), true
}

// Eval renders expr with DefaultSource.
func Eval(expr string) (string, bool) {
	return std.Eval(expr)
}
