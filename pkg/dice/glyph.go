package dice

import "strconv"

// circled holds ⓪ through ㊿, indexed by value.
var circled = []rune("⓪①②③④⑤⑥⑦⑧⑨⑩⑪⑫⑬⑭⑮⑯⑰⑱⑲⑳㉑㉒㉓㉔㉕㉖㉗㉘㉙㉚㉛㉜㉝㉞㉟㊱㊲㊳㊴㊵㊶㊷㊸㊹㊺㊻㊼㊽㊾㊿")

// Glyph returns the display glyph for a rolled value.
func Glyph(n int) string {
	switch {
	case n <= 0:
		return "X"
	case n >= len(circled):
		return "(" + strconv.Itoa(n) + ")"
	default:
		return string(circled[n])
	}
}
