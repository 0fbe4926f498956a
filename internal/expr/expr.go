// Package expr evaluates the restricted arithmetic grammar used by pricing
// rule expressions. Expressions arrive fully substituted: every {{variable}}
// placeholder has already been replaced with a decimal literal, so the input
// is pure arithmetic with no access to anything beyond its own text.
//
// The grammar covers decimal literals, + - * / %, comparisons, ! && ||, the
// ternary conditional, parentheses, and a closed set of helper functions
// (max, min, floor, ceil, round). There is no dynamic code execution: the
// input is parsed into an AST over this fixed grammar and interpreted.
package expr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidExpression indicates the input failed the character
	// whitelist or does not parse under the grammar. A leftover
	// un-substituted placeholder or any identifier outside the helper
	// function set fails with this error.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrEvaluation indicates the expression evaluated to a non-finite
	// result (division by zero, overflow).
	ErrEvaluation = errors.New("evaluation error")
)

// Evaluate parses and evaluates a fully substituted expression.
func Evaluate(input string) (float64, error) {
	if err := checkCharset(input); err != nil {
		return 0, err
	}

	node, err := parse(input)
	if err != nil {
		return 0, err
	}

	result := node.eval()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: non-finite result", ErrEvaluation)
	}

	return result, nil
}

// checkCharset rejects any rune outside the expression whitelist before the
// input reaches the parser. Letters are admitted only so the lexer can form
// helper function names; the parser rejects every other identifier.
func checkCharset(input string) error {
	for i, r := range input {
		if allowedRune(r) {
			continue
		}
		return fmt.Errorf("%w: illegal character %q at offset %d", ErrInvalidExpression, r, i)
	}
	return nil
}

func allowedRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r == ' ', r == '\t', r == '\n', r == '\r':
		return true
	}
	switch r {
	case '+', '-', '*', '/', '%', '.', ',', '(', ')', '[', ']',
		'?', ':', '>', '<', '=', '&', '|', '!':
		return true
	}
	return false
}

// builtins is the closed set of callable helper functions.
var builtins = map[string]struct {
	minArgs int
	maxArgs int // -1 means variadic
	apply   func(args []float64) float64
}{
	"max": {2, -1, func(args []float64) float64 {
		m := args[0]
		for _, a := range args[1:] {
			if a > m {
				m = a
			}
		}
		return m
	}},
	"min": {2, -1, func(args []float64) float64 {
		m := args[0]
		for _, a := range args[1:] {
			if a < m {
				m = a
			}
		}
		return m
	}},
	"floor": {1, 1, func(args []float64) float64 { return math.Floor(args[0]) }},
	"ceil":  {1, 1, func(args []float64) float64 { return math.Ceil(args[0]) }},
	"round": {1, 1, func(args []float64) float64 { return math.Round(args[0]) }},
}
