package convo

import "unicode/utf8"

const perMessageOverhead = 4

// EstimateTokens is a length based estimate: about four characters per token plus a fixed
// per-message overhead. It is deterministic and must be the only estimator used for triggers.
func EstimateTokens(s string) int {
	return (utf8.RuneCountInString(s)+3)/4 + perMessageOverhead
}
