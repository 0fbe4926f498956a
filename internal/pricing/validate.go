package pricing

import (
	"fmt"

	"github.com/openpricing/kestrel/internal/expr"
)

// ValidateExpression checks that a rule expression is well-formed without
// needing an answer snapshot: every {{name}} placeholder is replaced with a
// neutral literal and the result must evaluate. Used by catalog writes to
// reject broken expressions before they reach the engine.
func ValidateExpression(expression string) error {
	if expression == "" {
		return fmt.Errorf("expression is empty")
	}

	neutral := placeholderPattern.ReplaceAllString(expression, "1")
	if _, err := expr.Evaluate(neutral); err != nil {
		return err
	}
	return nil
}
