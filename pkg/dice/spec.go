package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultDiceSize = 20

	MaxDice    = 100
	MaxRepeats = 20

	// rerolls above this many values are summarized instead of listed
	maxListedRerolls = 10
)

var (
	// ErrNotDice indicates the input is not meant as a dice expression.
	ErrNotDice = errors.New("not a dice expression")

	// ErrInvalidDiceSize indicates the expression names a die with no faces.
	ErrInvalidDiceSize = errors.New("dice size must be positive")
)

// Direction says whether selected rolls are discarded or retained.
type Direction int

const (
	Drop Direction = iota
	Keep
)

func (d Direction) String() string {
	if d == Keep {
		return "keeping"
	}
	return "dropping"
}

// Condition says which end of the rolled values a selection takes.
type Condition int

const (
	Highest Condition = iota
	Lowest
)

func (c Condition) String() string {
	if c == Lowest {
		return "lowest"
	}
	return "highest"
}

// Selection is a drop/keep rule applied to one group of rolls.
type Selection struct {
	Direction Direction
	Condition Condition
	Amount    int
}

func (s Selection) String() string {
	if s.Amount == 1 {
		return fmt.Sprintf("%s %s roll", s.Direction, s.Condition)
	}
	return fmt.Sprintf("%s %s %d rolls", s.Direction, s.Condition, s.Amount)
}

// Spec is a validated set of roll parameters.
//
// NumDice is within [1, MaxDice] and Repeat within [1, MaxRepeats]. When
// Advantage or Disadvantage is set NumDice is 1 and Selection is nil. A
// non-nil Selection always has Amount within [1, NumDice-1].
type Spec struct {
	NumDice      int
	DiceSize     int
	Advantage    bool
	Disadvantage bool
	Reroll       int
	Modifier     int
	Repeat       int
	Selection    *Selection
}

// Versus reports whether s rolls two dice and keeps one.
func (s Spec) Versus() bool {
	return s.Advantage || s.Disadvantage
}

func parseInt(f Fields, field Field, def int) int {
	raw, ok := f.Get(field)
	if !ok {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return def
	}
	return int(v)
}

// parseAmount returns the captured amount when it lies within [1, limit].
func parseAmount(f Fields, field Field, limit int) (int, bool) {
	v := parseInt(f, field, 0)
	if v < 1 || v > limit {
		return 0, false
	}
	return v, true
}

var selectionOrder = []struct {
	field Field
	Selection
}{
	{FieldDropLowest, Selection{Direction: Drop, Condition: Lowest}},
	{FieldDropHighest, Selection{Direction: Drop, Condition: Highest}},
	{FieldKeepLowest, Selection{Direction: Keep, Condition: Lowest}},
	{FieldKeepHighest, Selection{Direction: Keep, Condition: Highest}},
}

// Resolve turns a capture set into a Spec. Out-of-range numerals fall back
// to their defaults; only a missing dice group and modifier, or a die size
// below one, reject the expression.
func Resolve(f Fields) (Spec, error) {
	if !f.Has(FieldDiceSize) && !f.Has(FieldModifier) {
		return Spec{}, ErrNotDice
	}

	s := Spec{
		NumDice:      min(max(parseInt(f, FieldNumDice, 1), 1), MaxDice),
		DiceSize:     parseInt(f, FieldDiceSize, DefaultDiceSize),
		Advantage:    f.Advantage,
		Disadvantage: f.Disadvantage,
		Reroll:       parseInt(f, FieldReroll, 0),
		Modifier:     parseInt(f, FieldModifier, 0),
	}
	if s.DiceSize <= 0 {
		return Spec{}, ErrInvalidDiceSize
	}

	repeat := max(parseInt(f, FieldRepeatPrefix, 1), parseInt(f, FieldRepeat, 1))
	s.Repeat = min(max(repeat, 1), MaxRepeats)

	if s.Versus() {
		s.NumDice = 1
		return s, nil
	}

	for _, candidate := range selectionOrder {
		if amount, ok := parseAmount(f, candidate.field, s.NumDice-1); ok {
			sel := candidate.Selection
			sel.Amount = amount
			s.Selection = &sel
			break
		}
	}
	return s, nil
}

// String restates s in words, e.g.
// "4d6 + 2, rerolling 1s, dropping lowest roll, repeating 6 times".
func (s Spec) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dd%d", s.NumDice, s.DiceSize)
	b.WriteString(modifierSuffix(s.Modifier))
	switch {
	case s.Disadvantage:
		b.WriteString(" with disadvantage")
	case s.Advantage:
		b.WriteString(" with advantage")
	}
	if s.Reroll > 0 {
		b.WriteString(", rerolling ")
		b.WriteString(rerollList(min(s.Reroll, s.DiceSize)))
	}
	if s.Selection != nil {
		b.WriteString(", ")
		b.WriteString(s.Selection.String())
	}
	if s.Repeat > 1 {
		fmt.Fprintf(&b, ", repeating %d times", s.Repeat)
	}
	return b.String()
}

func rerollList(n int) string {
	if n > maxListedRerolls {
		return fmt.Sprintf("1s through %ds", n)
	}
	values := make([]string, n)
	for i := range values {
		values[i] = strconv.Itoa(i+1) + "s"
	}
	return strings.Join(values, "/")
}

func modifierSuffix(modifier int) string {
	switch {
	case modifier > 0:
		return fmt.Sprintf(" + %d", modifier)
	case modifier < 0:
		return fmt.Sprintf(" – %d", -modifier)
	default:
		return ""
	}
}
