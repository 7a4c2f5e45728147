package dice

import (
	"fmt"
	"strings"
)

// Markup used in rendered results.
const (
	emphasis = "**"
	strike   = "~~"
)

func bold(s string) string {
	return emphasis + s + emphasis
}

func struck(s string) string {
	return strike + s + strike
}

// FormatRoll renders one die. A rerolled die shows its discarded draw
// struck through before the kept one; when the die is itself struck the
// pair is struck as a unit.
func FormatRoll(r Roll, isStruck bool) string {
	if !r.Rerolled() {
		if isStruck {
			return struck(Glyph(r.Value))
		}
		return Glyph(r.Value)
	}
	if isStruck {
		return struck(Glyph(*r.Original) + " " + Glyph(r.Value))
	}
	return struck(Glyph(*r.Original)) + " " + Glyph(r.Value)
}

// Iteration is one repeat of a spec. Counted marks the rolls that make up
// Sum.
type Iteration struct {
	Rolls   []Roll
	Counted []bool
	Text    string
	Sum     int
}

func sumLine(rolls, modifier string, sum int) string {
	return fmt.Sprintf("%s%s → %s", rolls, modifier, bold(fmt.Sprint(sum)))
}

// versus renders an advantage or disadvantage pair. Disadvantage wins when
// both were asked for. On a tie neither side is emphasized and the first
// roll is counted.
func versus(s Spec, a, b Roll) Iteration {
	first := a.Value > b.Value
	if s.Disadvantage {
		first = a.Value < b.Value
	}
	left, right := FormatRoll(a, false), FormatRoll(b, false)
	chosen := 0
	switch {
	case a.Value == b.Value:
	case first:
		left = bold(left)
	default:
		right = bold(right)
		chosen = 1
	}
	rolls := []Roll{a, b}
	sum := rolls[chosen].Value + s.Modifier
	return Iteration{
		Rolls:   rolls,
		Counted: []bool{chosen == 0, chosen == 1},
		Text:    sumLine(left+" / "+right, modifierSuffix(s.Modifier), sum),
		Sum:     sum,
	}
}

// group renders every roll in rolled order, striking the rolls a
// selection excludes.
func group(s Spec, rolls []Roll) Iteration {
	counted := make([]bool, len(rolls))
	for i := range counted {
		counted[i] = true
	}
	if sel := s.Selection; sel != nil {
		values := make([]int, len(rolls))
		for i, r := range rolls {
			values[i] = r.Value
		}
		marked := Mark(values, sel.Amount, sel.Condition)
		for i, m := range marked {
			counted[i] = m == (sel.Direction == Keep)
		}
	}

	sum := s.Modifier
	parts := make([]string, len(rolls))
	for i, r := range rolls {
		parts[i] = FormatRoll(r, !counted[i])
		if counted[i] {
			sum += r.Value
		}
	}

	if len(rolls) == 1 && s.Modifier == 0 {
		return Iteration{Rolls: rolls, Counted: counted, Text: parts[0], Sum: sum}
	}
	return Iteration{
		Rolls:   rolls,
		Counted: counted,
		Text:    sumLine(strings.Join(parts, " + "), modifierSuffix(s.Modifier), sum),
		Sum:     sum,
	}
}

// Result is a fully evaluated expression.
type Result struct {
	Spec       Spec
	Iterations []Iteration
	Total      int
}

// String renders the result with its restated spec, one line per
// iteration, and a grand total when the roll repeats.
func (r Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rolling %s:", r.Spec)
	for _, it := range r.Iterations {
		b.WriteByte('\n')
		b.WriteString(it.Text)
	}
	if r.Spec.Repeat > 1 {
		fmt.Fprintf(&b, "\nTotal: %s", bold(fmt.Sprint(r.Total)))
	}
	return b.String()
}
