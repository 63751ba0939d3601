package engine

import (
	"math"
	"strconv"
	"strings"
)

// The arithmetic grammar is deliberately tiny: numbers, + - * /, and
// parentheses. Formulas are substituted down to this alphabet before
// parsing, so the parser itself is the safety boundary; anything outside
// the grammar fails to parse and the evaluation reports no result.

type exprNode interface {
	eval() float64
}

type numberNode struct {
	value float64
}

func (n numberNode) eval() float64 { return n.value }

type unaryNode struct {
	negate  bool
	operand exprNode
}

func (n unaryNode) eval() float64 {
	v := n.operand.eval()
	if n.negate {
		return -v
	}
	return v
}

type binaryNode struct {
	op          byte
	left, right exprNode
}

func (n binaryNode) eval() float64 {
	l, r := n.left.eval(), n.right.eval()
	switch n.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		return l / r
	}
}

// evalArithmetic parses and evaluates a purely numeric expression.
// It reports failure for syntax errors and non-finite results (division by
// zero included); it never panics.
func evalArithmetic(input string) (float64, bool) {
	p := &exprParser{input: input}
	node, ok := p.parseExpr()
	if !ok {
		return 0, false
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return 0, false
	}
	result := node.eval()
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, false
	}
	return result, true
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

// parseExpr handles addition and subtraction.
func (p *exprParser) parseExpr() (exprNode, bool) {
	left, ok := p.parseTerm()
	if !ok {
		return nil, false
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, true
		}
		p.pos++
		right, ok := p.parseTerm()
		if !ok {
			return nil, false
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// parseTerm handles multiplication and division.
func (p *exprParser) parseTerm() (exprNode, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return nil, false
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, true
		}
		p.pos++
		right, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

// parseUnary handles leading signs.
func (p *exprParser) parseUnary() (exprNode, bool) {
	switch p.peek() {
	case '-':
		p.pos++
		operand, ok := p.parseUnary()
		if !ok {
			return nil, false
		}
		return unaryNode{negate: true, operand: operand}, true
	case '+':
		p.pos++
		return p.parseUnary()
	default:
		return p.parsePrimary()
	}
}

// parsePrimary handles numbers and parenthesized subexpressions.
func (p *exprParser) parsePrimary() (exprNode, bool) {
	c := p.peek()
	if c == '(' {
		p.pos++
		node, ok := p.parseExpr()
		if !ok {
			return nil, false
		}
		if p.peek() != ')' {
			return nil, false
		}
		p.pos++
		return node, true
	}

	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return nil, false
	}
	literal := p.input[start:p.pos]
	if strings.Count(literal, ".") > 1 {
		return nil, false
	}
	value, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, false
	}
	return numberNode{value: value}, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
