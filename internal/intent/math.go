package intent

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// Undefined is the payload of an arithmetic request with no numeric answer
const Undefined = "undefined"

const (
	mathAlphabet = "0123456789+-*/().^% "
	maxDepth     = 64
)

var (
	errSyntax    = errors.New("malformed expression")
	errUndefined = errors.New("undefined result")
)

// EvalResult is the outcome of evaluating a sanitized expression
type EvalResult struct {
	Expression string
	Value      float64
	Undefined  bool
}

// Format renders the value the way it is quoted back to the user
func (r EvalResult) Format() string {
	if r.Undefined {
		return Undefined
	}
	return FormatNumber(r.Value)
}

// FormatNumber prints integral values without a decimal point and others
// with six decimals, trailing zeros trimmed
func FormatNumber(v float64) string {
	if v == 0 {
		v = 0 // normalizes -0
	}
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// Sanitize maps multiplication/division glyphs to ASCII and reports whether
// the result is a candidate arithmetic expression: whitelisted characters only,
// with at least one binary operator.
func Sanitize(expr string) (string, bool) {
	expr = strings.NewReplacer("×", "*", "÷", "/", "x", "*", "X", "*").Replace(expr)
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", false
	}
	for _, r := range expr {
		if !strings.ContainsRune(mathAlphabet, r) {
			return "", false
		}
	}
	if !strings.ContainsAny(strings.TrimLeft(expr, "-+( "), "+-*/^%") {
		return "", false
	}
	return expr, true
}

// Evaluate parses and evaluates a sanitized expression.
// A syntax error is returned as error; arithmetic with no defined answer
// (division or modulo by zero, overflow) yields Undefined without error.
func Evaluate(expr string) (EvalResult, error) {
	p := &parser{src: expr}
	v, err := p.parse()
	switch {
	case errors.Is(err, errUndefined):
		return EvalResult{Expression: expr, Undefined: true}, nil
	case err != nil:
		return EvalResult{}, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return EvalResult{Expression: expr, Undefined: true}, nil
	}
	return EvalResult{Expression: expr, Value: v}, nil
}

// parser is a recursive-descent evaluator over
//
//	expr    := term (('+'|'-') term)*
//	term    := unary (('*'|'/'|'%') unary)*
//	unary   := ('+'|'-') unary | power
//	power   := primary ('^' unary)?
//	primary := number | '(' expr ')'
type parser struct {
	src   string
	pos   int
	depth int
}

func (p *parser) parse() (float64, error) {
	v, err := p.expr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, errSyntax
	}
	return v, nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return errSyntax
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expr() (float64, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()

	left, err := p.term()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.term()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *parser) term() (float64, error) {
	left, err := p.unary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.unary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			if right == 0 {
				return 0, errUndefined
			}
			left /= right
		case '%':
			if right == 0 {
				return 0, errUndefined
			}
			left = floorMod(left, right)
		}
	}
}

func (p *parser) unary() (float64, error) {
	if err := p.enter(); err != nil {
		return 0, err
	}
	defer p.leave()

	switch p.peek() {
	case '-':
		p.pos++
		v, err := p.unary()
		return -v, err
	case '+':
		p.pos++
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (float64, error) {
	base, err := p.primary()
	if err != nil {
		return 0, err
	}
	if p.peek() != '^' {
		return base, nil
	}
	p.pos++
	exp, err := p.unary()
	if err != nil {
		return 0, err
	}
	v := math.Pow(base, exp)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errUndefined
	}
	return v, nil
}

func (p *parser) primary() (float64, error) {
	if p.peek() == '(' {
		p.pos++
		v, err := p.expr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errSyntax
		}
		p.pos++
		return v, nil
	}
	return p.number()
}

func (p *parser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	dot := false
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '.' && !dot {
			dot = true
		} else if c < '0' || c > '9' {
			break
		}
		p.pos++
	}
	lit := p.src[start:p.pos]
	if lit == "" || lit == "." {
		return 0, errSyntax
	}
	v, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, errSyntax
	}
	return v, nil
}

// peek returns the next non-space byte without consuming it
func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

// floorMod takes the sign of the divisor
func floorMod(a, b float64) float64 {
	r := math.Mod(a, b)
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}
