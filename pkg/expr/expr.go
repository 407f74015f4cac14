// Package expr compiles and evaluates SPICE behavioral-source expressions:
// arithmetic over node voltages, branch currents, parameters, TIME and TEMP,
// with the function set behavioral macro-models actually use (tanh, ln, ...).
package expr

import (
	"math"
	"strings"

	"github.com/pkg/errors"
)

// VarKind discriminates the circuit quantities an expression can reference.
type VarKind int

const (
	VarVoltage VarKind = iota // V(node) or V(node1,node2)
	VarCurrent                // I(sourceName)
	VarTime
	VarTemp
	VarParam
)

// Var is a single external dependency of a compiled expression.
type Var struct {
	Kind  VarKind
	Node1 string // voltage: positive node
	Node2 string // voltage: negative node, "" for ground
	Name  string // current: source name, param: parameter name
}

// Env supplies the values an expression pulls in during evaluation.
// NodeVoltage and BranchCurrent may be nil for pure parameter expressions.
type Env struct {
	NodeVoltage   func(node string) float64
	BranchCurrent func(name string) float64
	Params        map[string]float64
	Time          float64
	Temp          float64 // Celsius, matching SPICE TEMP
}

// Expr is a compiled behavioral expression.
type Expr struct {
	root node
	src  string
	vars []Var
}

// Compile parses src into an evaluable expression.
func Compile(src string) (*Expr, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.next(); err != nil {
		return nil, errors.Wrapf(err, "compiling %q", src)
	}
	root, err := p.parseExpr(0)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %q", src)
	}
	if p.tok.kind != tokEOF {
		return nil, errors.Errorf("compiling %q: unexpected %q", src, p.tok.text)
	}

	e := &Expr{root: root, src: src}
	collectVars(root, &e.vars)
	return e, nil
}

// Source returns the text the expression was compiled from.
func (e *Expr) Source() string { return e.src }

// Vars reports the circuit quantities the expression depends on. Device
// stamping uses this to decide which Jacobian entries to fill.
func (e *Expr) Vars() []Var { return e.vars }

// Eval computes the expression value. Math domain violations are saturated
// rather than returned as errors so a bad Newton iterate cannot abort an
// analysis; unresolvable references are errors.
func (e *Expr) Eval(env *Env) (float64, error) {
	return e.root.eval(env)
}

func collectVars(n node, out *[]Var) {
	switch v := n.(type) {
	case *varNode:
		for _, seen := range *out {
			if seen == v.v {
				return
			}
		}
		*out = append(*out, v.v)
	case *unaryNode:
		collectVars(v.operand, out)
	case *binaryNode:
		collectVars(v.left, out)
		collectVars(v.right, out)
	case *callNode:
		for _, arg := range v.args {
			collectVars(arg, out)
		}
	}
}

type node interface {
	eval(env *Env) (float64, error)
}

type numberNode struct{ value float64 }

func (n *numberNode) eval(*Env) (float64, error) { return n.value, nil }

type varNode struct{ v Var }

func (n *varNode) eval(env *Env) (float64, error) {
	switch n.v.Kind {
	case VarTime:
		return env.Time, nil
	case VarTemp:
		return env.Temp, nil
	case VarVoltage:
		if env.NodeVoltage == nil {
			return 0, errors.Errorf("no node voltages available for V(%s)", n.v.Node1)
		}
		val := env.NodeVoltage(n.v.Node1)
		if n.v.Node2 != "" {
			val -= env.NodeVoltage(n.v.Node2)
		}
		return val, nil
	case VarCurrent:
		if env.BranchCurrent == nil {
			return 0, errors.Errorf("no branch currents available for I(%s)", n.v.Name)
		}
		return env.BranchCurrent(n.v.Name), nil
	case VarParam:
		if val, ok := env.Params[n.v.Name]; ok {
			return val, nil
		}
		return 0, errors.Errorf("undefined parameter %q", n.v.Name)
	}
	return 0, errors.Errorf("unknown variable kind %d", n.v.Kind)
}

type unaryNode struct {
	op      byte
	operand node
}

func (n *unaryNode) eval(env *Env) (float64, error) {
	val, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	if n.op == '-' {
		return -val, nil
	}
	return val, nil
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n *binaryNode) eval(env *Env) (float64, error) {
	lv, err := n.left.eval(env)
	if err != nil {
		return 0, err
	}
	rv, err := n.right.eval(env)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case '+':
		return lv + rv, nil
	case '-':
		return lv - rv, nil
	case '*':
		return lv * rv, nil
	case '/':
		if rv == 0 {
			// Saturate like a behavioral source, signed by the numerator.
			if lv == 0 {
				return 0, nil
			}
			return math.Copysign(divSaturation, lv), nil
		}
		return lv / rv, nil
	case '^':
		return math.Pow(lv, rv), nil
	}
	return 0, errors.Errorf("unknown operator %q", string(n.op))
}

// divSaturation bounds x/0 so Newton iteration keeps moving.
const divSaturation = 1e30

type callNode struct {
	name string
	fn   func(args []float64) float64
	args []node
}

func (n *callNode) eval(env *Env) (float64, error) {
	vals := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, err := arg.eval(env)
		if err != nil {
			return 0, err
		}
		vals[i] = v
	}
	return n.fn(vals), nil
}

// logFloor keeps ln/log finite on non-positive arguments by evaluating
// at a small positive floor instead of faulting.
const logFloor = 1e-30

type function struct {
	arity int
	fn    func(args []float64) float64
}

var functions = map[string]function{
	"tanh": {1, func(a []float64) float64 { return math.Tanh(a[0]) }},
	"sinh": {1, func(a []float64) float64 { return math.Sinh(a[0]) }},
	"cosh": {1, func(a []float64) float64 { return math.Cosh(a[0]) }},
	"exp":  {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"ln":   {1, func(a []float64) float64 { return math.Log(math.Max(math.Abs(a[0]), logFloor)) }},
	"log":  {1, func(a []float64) float64 { return math.Log10(math.Max(math.Abs(a[0]), logFloor)) }},
	"sqrt": {1, func(a []float64) float64 { return math.Sqrt(math.Abs(a[0])) }},
	"abs":  {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"atan": {1, func(a []float64) float64 { return math.Atan(a[0]) }},
	"u": {1, func(a []float64) float64 {
		if a[0] > 0 {
			return 1
		}
		return 0
	}},
	"uramp": {1, func(a []float64) float64 { return math.Max(a[0], 0) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
	"limit": {3, func(a []float64) float64 { return math.Min(math.Max(a[0], a[1]), a[2]) }},
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	tok, err := p.lex.scan()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

// binaryPrecedence orders + - below * / below ^.
func binaryPrecedence(kind tokenKind) int {
	switch kind {
	case tokPlus, tokMinus:
		return 1
	case tokStar, tokSlash:
		return 2
	case tokCaret:
		return 3
	}
	return 0
}

// parseExpr is a precedence climber; ^ binds right-associatively.
func (p *parser) parseExpr(minPrec int) (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		prec := binaryPrecedence(p.tok.kind)
		if prec == 0 || prec < minPrec {
			return left, nil
		}

		op := p.tok.text[0]
		if err := p.next(); err != nil {
			return nil, err
		}

		nextMin := prec + 1
		if op == '^' {
			nextMin = prec
		}
		right, err := p.parseExpr(nextMin)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	switch p.tok.kind {
	case tokMinus, tokPlus:
		op := p.tok.text[0]
		if err := p.next(); err != nil {
			return nil, err
		}
		// Unary sign binds tighter than * and / but looser than ^,
		// so -2^2 is -(2^2).
		operand, err := p.parseExpr(binaryPrecedence(tokCaret))
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		val := p.tok.value
		if err := p.next(); err != nil {
			return nil, err
		}
		return &numberNode{value: val}, nil

	case tokLParen:
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, errors.Errorf("expected ')', got %q", p.tok.text)
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokIdent:
		name := strings.ToLower(p.tok.text)
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokLParen {
			return p.identNode(name)
		}
		return p.parseCall(name)
	}

	return nil, errors.Errorf("unexpected %q", p.tok.text)
}

func (p *parser) identNode(name string) (node, error) {
	switch name {
	case "time":
		return &varNode{v: Var{Kind: VarTime}}, nil
	case "temp":
		return &varNode{v: Var{Kind: VarTemp}}, nil
	case "pi":
		return &numberNode{value: math.Pi}, nil
	case "e":
		return &numberNode{value: math.E}, nil
	}
	return &varNode{v: Var{Kind: VarParam, Name: name}}, nil
}

func (p *parser) parseCall(name string) (node, error) {
	// Consume '('.
	if err := p.next(); err != nil {
		return nil, err
	}

	// V(...) and I(...) take raw node/source names, not sub-expressions.
	if name == "v" || name == "i" {
		return p.parseCircuitRef(name)
	}

	fn, ok := functions[name]
	if !ok {
		return nil, errors.Errorf("unknown function %q", name)
	}

	var args []node
	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.tok.kind == tokComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.tok.kind != tokRParen {
		return nil, errors.Errorf("expected ')' closing %s(), got %q", name, p.tok.text)
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	if len(args) != fn.arity {
		return nil, errors.Errorf("%s() takes %d argument(s), got %d", name, fn.arity, len(args))
	}
	return &callNode{name: name, fn: fn.fn, args: args}, nil
}

func (p *parser) parseCircuitRef(kind string) (node, error) {
	names := make([]string, 0, 2)
	for {
		if p.tok.kind != tokIdent && p.tok.kind != tokNumber {
			return nil, errors.Errorf("expected node name in %s(), got %q", kind, p.tok.text)
		}
		names = append(names, strings.ToLower(p.tok.text))
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokComma {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.tok.kind != tokRParen {
		return nil, errors.Errorf("expected ')' closing %s(), got %q", kind, p.tok.text)
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	if kind == "i" {
		if len(names) != 1 {
			return nil, errors.Errorf("i() takes one source name, got %d", len(names))
		}
		return &varNode{v: Var{Kind: VarCurrent, Name: names[0]}}, nil
	}

	v := Var{Kind: VarVoltage, Node1: names[0]}
	switch len(names) {
	case 1:
	case 2:
		v.Node2 = names[1]
	default:
		return nil, errors.Errorf("v() takes one or two nodes, got %d", len(names))
	}
	return &varNode{v: v}, nil
}
