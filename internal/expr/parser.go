package expr

import (
	"fmt"
	"math"
)

// node is an evaluatable AST node. Evaluation is total: any input the parser
// accepts evaluates without error, with non-finite results caught afterwards.
type node interface {
	eval() float64
}

type numberNode struct {
	value float64
}

func (n numberNode) eval() float64 { return n.value }

type unaryNode struct {
	op      tokenKind
	operand node
}

func (n unaryNode) eval() float64 {
	v := n.operand.eval()
	switch n.op {
	case tokMinus:
		return -v
	case tokNot:
		if v == 0 {
			return 1
		}
		return 0
	}
	return v
}

type binaryNode struct {
	op    tokenKind
	left  node
	right node
}

func (n binaryNode) eval() float64 {
	l := n.left.eval()
	r := n.right.eval()

	switch n.op {
	case tokPlus:
		return l + r
	case tokMinus:
		return l - r
	case tokStar:
		return l * r
	case tokSlash:
		return l / r
	case tokPercent:
		return math.Mod(l, r)
	case tokLT:
		return boolVal(l < r)
	case tokGT:
		return boolVal(l > r)
	case tokLE:
		return boolVal(l <= r)
	case tokGE:
		return boolVal(l >= r)
	case tokEQ:
		return boolVal(l == r)
	case tokNE:
		return boolVal(l != r)
	case tokAnd:
		return boolVal(l != 0 && r != 0)
	case tokOr:
		return boolVal(l != 0 || r != 0)
	}
	return 0
}

type ternaryNode struct {
	cond node
	then node
	els  node
}

func (n ternaryNode) eval() float64 {
	if n.cond.eval() != 0 {
		return n.then.eval()
	}
	return n.els.eval()
}

type callNode struct {
	name string
	args []node
}

func (n callNode) eval() float64 {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		args[i] = a.eval()
	}
	return builtins[n.name].apply(args)
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// parser is a Pratt parser over the fixed expression grammar.
type parser struct {
	lex lexer
	tok token // current lookahead
}

func parse(input string) (node, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}

	n, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidExpression, p.tok.text, p.tok.pos)
	}

	return n, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// bindingPower returns the left binding power of an infix operator, or 0 for
// tokens that cannot continue an expression.
func bindingPower(kind tokenKind) int {
	switch kind {
	case tokQuestion:
		return 1
	case tokOr:
		return 2
	case tokAnd:
		return 3
	case tokEQ, tokNE:
		return 4
	case tokLT, tokGT, tokLE, tokGE:
		return 5
	case tokPlus, tokMinus:
		return 6
	case tokStar, tokSlash, tokPercent:
		return 7
	}
	return 0
}

func (p *parser) parseExpr(minBP int) (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		op := p.tok.kind
		bp := bindingPower(op)
		if bp == 0 || bp < minBP {
			return left, nil
		}

		if err := p.advance(); err != nil {
			return nil, err
		}

		if op == tokQuestion {
			then, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			if p.tok.kind != tokColon {
				return nil, fmt.Errorf("%w: expected ':' in conditional at offset %d", ErrInvalidExpression, p.tok.pos)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			// Right-associative: a ? b : c ? d : e nests to the right.
			els, err := p.parseExpr(bp)
			if err != nil {
				return nil, err
			}
			left = ternaryNode{cond: left, then: then, els: els}
			continue
		}

		right, err := p.parseExpr(bp + 1)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.tok.kind {
	case tokMinus, tokNot:
		op := p.tok.kind
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	case tokPlus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseUnary()
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := numberNode{value: p.tok.value}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return n, nil

	case tokLParen, tokLBracket:
		closing := tokRParen
		if p.tok.kind == tokLBracket {
			closing = tokRBracket
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != closing {
			return nil, fmt.Errorf("%w: unbalanced grouping at offset %d", ErrInvalidExpression, p.tok.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		return p.parseCall()
	}

	return nil, fmt.Errorf("%w: unexpected %q at offset %d", ErrInvalidExpression, p.tok.text, p.tok.pos)
}

// parseCall handles the closed helper function set. Any identifier that is
// not a known function name is rejected: after substitution no variable
// names may remain in the expression.
func (p *parser) parseCall() (node, error) {
	name := p.tok.text
	pos := p.tok.pos

	fn, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown identifier %q at offset %d", ErrInvalidExpression, name, pos)
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokLParen {
		return nil, fmt.Errorf("%w: expected '(' after %q at offset %d", ErrInvalidExpression, name, p.tok.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []node
	if p.tok.kind != tokRParen {
		for {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}

	if p.tok.kind != tokRParen {
		return nil, fmt.Errorf("%w: unbalanced call to %q at offset %d", ErrInvalidExpression, name, p.tok.pos)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, fmt.Errorf("%w: wrong number of arguments to %q at offset %d", ErrInvalidExpression, name, pos)
	}

	return callNode{name: name, args: args}, nil
}
