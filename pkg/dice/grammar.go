package dice

import (
	"strings"
	"unicode"
)

// Field names one numeric capture of the dice notation.
type Field int

const (
	FieldRepeatPrefix Field = iota // leading "N*"
	FieldNumDice
	FieldDiceSize
	FieldDropLowest
	FieldDropHighest
	FieldKeepLowest
	FieldKeepHighest
	FieldRepeat // trailing "*N", "repN", "repeatN"
	FieldReroll
	FieldModifier
	fieldCount
)

var fieldNames = [fieldCount]string{
	"repeat_prefix",
	"num_dice",
	"dice_size",
	"drop_lowest",
	"drop_highest",
	"keep_lowest",
	"keep_highest",
	"repeat",
	"reroll",
	"modifier",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "unknown"
	}
	return fieldNames[f]
}

// Fields is the raw capture set of a recognized expression. Numeric
// captures are kept as the matched text; a field captured more than once
// holds its last occurrence.
type Fields struct {
	raw [fieldCount]string
	set [fieldCount]bool

	Advantage    bool
	Disadvantage bool
}

// Get returns the raw text captured for field.
func (f Fields) Get(field Field) (string, bool) {
	if field < 0 || field >= fieldCount {
		return "", false
	}
	return f.raw[field], f.set[field]
}

// Has reports whether field was captured.
func (f Fields) Has(field Field) bool {
	_, ok := f.Get(field)
	return ok
}

func (f *Fields) put(field Field, raw string) {
	f.raw[field] = raw
	f.set[field] = true
}

type flag int

const (
	noFlag flag = iota
	flagDisadvantage
	flagAdvantage
)

// tokenForm is one alternative of the trailing-token grammar. Prefixes are
// tried in order, so longer spellings are listed before shorter ones.
type tokenForm struct {
	prefixes []string
	field    Field
	flag     flag
	digits   bool
	signed   bool
}

// trailing is the ordered alternation tried at each position after the
// dice group. The first form that leads to a full match wins.
var trailing = []tokenForm{
	{prefixes: []string{"dl", "d"}, field: FieldDropLowest, digits: true},
	{prefixes: []string{"dh"}, field: FieldDropHighest, digits: true},
	{prefixes: []string{"kl"}, field: FieldKeepLowest, digits: true},
	{prefixes: []string{"kh", "k"}, field: FieldKeepHighest, digits: true},
	{prefixes: []string{"disadvantage", "disadv", "dis", "d"}, flag: flagDisadvantage},
	{prefixes: []string{"advantage", "adv", "a"}, flag: flagAdvantage},
	{prefixes: []string{"*", "repeat", "rep"}, field: FieldRepeat, digits: true},
	{prefixes: []string{"reroll", "r"}, field: FieldReroll, digits: true},
	{prefixes: []string{"+", "-"}, field: FieldModifier, digits: true, signed: true},
}

type candidate struct {
	end int
	raw string
}

// candidates lists the ways form can match input at pos, preferred first.
// Digit runs are always taken whole: no token starts with a digit, so a
// shorter run can never be followed by a valid token.
func (form tokenForm) candidates(input string, pos int) []candidate {
	var out []candidate
	for _, prefix := range form.prefixes {
		if !strings.HasPrefix(input[pos:], prefix) {
			continue
		}
		end := pos + len(prefix)
		if !form.digits {
			out = append(out, candidate{end: end})
			continue
		}
		n := digitRun(input, end)
		if n == 0 {
			continue
		}
		start := end
		if form.signed {
			start = pos
		}
		out = append(out, candidate{end: end + n, raw: input[start : end+n]})
	}
	return out
}

func (form tokenForm) apply(f *Fields, c candidate) {
	switch form.flag {
	case flagDisadvantage:
		f.Disadvantage = true
	case flagAdvantage:
		f.Advantage = true
	default:
		f.put(form.field, c.raw)
	}
}

func digitRun(s string, pos int) int {
	n := 0
	for pos+n < len(s) && s[pos+n] >= '0' && s[pos+n] <= '9' {
		n++
	}
	return n
}

type scanner struct {
	input string
	// dead marks positions from which the trailing tokens cannot reach the
	// end of input. Reachability does not depend on captures.
	dead []bool
}

func (s *scanner) tail(pos int, f *Fields) bool {
	if pos == len(s.input) {
		return true
	}
	if s.dead[pos] {
		return false
	}
	for _, form := range trailing {
		for _, c := range form.candidates(s.input, pos) {
			saved := *f
			form.apply(f, c)
			if s.tail(c.end, f) {
				return true
			}
			*f = saved
		}
	}
	s.dead[pos] = true
	return false
}

// diceGroup matches "[N]dM" at pos.
func (s *scanner) diceGroup(pos int, f *Fields) (int, bool) {
	n := digitRun(s.input, pos)
	at := pos + n
	if at >= len(s.input) || s.input[at] != 'd' {
		return pos, false
	}
	m := digitRun(s.input, at+1)
	if m == 0 {
		return pos, false
	}
	if n > 0 {
		f.put(FieldNumDice, s.input[pos:at])
	}
	f.put(FieldDiceSize, s.input[at+1:at+1+m])
	return at + 1 + m, true
}

// MaxExpressionLength is the longest input, in bytes, Recognize accepts.
const MaxExpressionLength = 4 << 10

// Normalize removes all whitespace and folds the expression to lower case.
func Normalize(expr string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, expr)
}

// Recognize matches expr in full against the dice notation and returns its
// captures. It reports false when expr is not in the notation at all or is
// longer than MaxExpressionLength.
func Recognize(expr string) (Fields, bool) {
	if len(expr) > MaxExpressionLength {
		return Fields{}, false
	}
	input := Normalize(expr)
	s := &scanner{
		input: input,
		dead:  make([]bool, len(input)+1),
	}

	var f Fields
	pos := 0
	if n := digitRun(input, 0); n > 0 && n < len(input) && input[n] == '*' {
		f.put(FieldRepeatPrefix, input[:n])
		pos = n + 1
	}

	base := f
	if end, ok := s.diceGroup(pos, &f); ok {
		if s.tail(end, &f) {
			return f, true
		}
		f = base
	}
	if s.tail(pos, &f) {
		return f, true
	}
	return Fields{}, false
}
