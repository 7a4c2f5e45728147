// Package dice interprets dice notation such as "4d6r1k3*6", rolls it, and
// renders the result with chat markup: **emphasis** for chosen values and
// sums, ~~strike~~ for dropped or rerolled dice, and circled glyphs for
// values.
//
// The notation is an optional repeat prefix "N*", an optional dice group
// "[N]dM", then any number of trailing tokens: drop lowest "dN"/"dlN", drop
// highest "dhN", keep lowest "klN", keep highest "kN"/"khN", disadvantage
// "d"/"dis"/"disadv"/"disadvantage", advantage "a"/"adv"/"advantage",
// repeat "*N"/"repN"/"repeatN", reroll "rN"/"rerollN", and a signed
// modifier "+N"/"-N". Whitespace and case are ignored.
package dice
