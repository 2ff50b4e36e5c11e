package component

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// Expression is a compiled Reference/Validator/Coercer/Visible/ReadOnly
// expression (spec §4.1). It is a small dynamic, late-bound evaluator:
// identifiers prefixed with "$" or "%" resolve to sibling property
// values, literals are int/float/bool/string/list, and it supports
// if(a,b,c), arithmetic, comparisons, logical operators, and the
// constructor calls Unit(...) / Range(...).
type Expression struct {
	source string
	root   exprNode
}

// EvalContext resolves identifiers against the owning PropertyObject.
type EvalContext interface {
	GetPropertyValue(name string) (interface{}, error)
}

// Compile parses src into an Expression. It does not evaluate it.
func Compile(src string) (*Expression, error) {
	p := &exprParser{toks: tokenize(src), src: src}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, daqerr.Wrap(daqerr.InvalidValue, "", err, "failed to parse expression "+src)
	}
	if p.peek().kind != "eof" {
		return nil, daqerr.Newf(daqerr.InvalidValue, "", "unexpected trailing tokens in expression %q", src)
	}
	return &Expression{source: src, root: node}, nil
}

// MustCompile is like Compile but panics on error; useful for literal
// expressions baked into module code.
func MustCompile(src string) *Expression {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Eval evaluates the expression against ctx.
func (e *Expression) Eval(ctx EvalContext) (interface{}, error) {
	return e.root.eval(ctx)
}

func (e *Expression) String() string { return e.source }

// --- AST ---

type exprNode interface {
	eval(ctx EvalContext) (interface{}, error)
}

type litNode struct{ v interface{} }

func (n litNode) eval(EvalContext) (interface{}, error) { return n.v, nil }

type listNode struct{ items []exprNode }

func (n listNode) eval(ctx EvalContext) (interface{}, error) {
	out := make([]interface{}, len(n.items))
	for i, it := range n.items {
		v, err := it.eval(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type identNode struct{ name string }

func (n identNode) eval(ctx EvalContext) (interface{}, error) {
	name := strings.TrimPrefix(strings.TrimPrefix(n.name, "$"), "%")
	return ctx.GetPropertyValue(name)
}

type ifNode struct{ cond, then, els exprNode }

func (n ifNode) eval(ctx EvalContext) (interface{}, error) {
	c, err := n.cond.eval(ctx)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.then.eval(ctx)
	}
	return n.els.eval(ctx)
}

type callNode struct {
	name string
	args []exprNode
}

func (n callNode) eval(ctx EvalContext) (interface{}, error) {
	args := make([]interface{}, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch n.name {
	case "if":
		if len(args) != 3 {
			return nil, daqerr.Newf(daqerr.InvalidValue, "", "if() takes 3 arguments")
		}
		if truthy(args[0]) {
			return args[1], nil
		}
		return args[2], nil
	case "Unit":
		return map[string]interface{}{"__type": "Unit", "args": args}, nil
	case "Range":
		return map[string]interface{}{"__type": "Range", "args": args}, nil
	default:
		return nil, daqerr.Newf(daqerr.InvalidValue, "", "unknown function %q", n.name)
	}
}

type unaryNode struct {
	op   string
	node exprNode
}

func (n unaryNode) eval(ctx EvalContext) (interface{}, error) {
	v, err := n.node.eval(ctx)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !truthy(v), nil
	case "-":
		f, ok := toFloat(v)
		if !ok {
			return nil, daqerr.Newf(daqerr.InvalidValue, "", "cannot negate %v", v)
		}
		return -f, nil
	}
	return nil, daqerr.Newf(daqerr.InvalidValue, "", "unknown unary operator %q", n.op)
}

type binNode struct {
	op          string
	left, right exprNode
}

func (n binNode) eval(ctx EvalContext) (interface{}, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "&&":
		return truthy(l) && truthy(r), nil
	case "||":
		return truthy(l) || truthy(r), nil
	case "==":
		return equalValues(l, r), nil
	case "!=":
		return !equalValues(l, r), nil
	case "<", "<=", ">", ">=":
		lf, lok := toFloat(l)
		rf, rok := toFloat(r)
		if !lok || !rok {
			return nil, daqerr.Newf(daqerr.InvalidValue, "", "cannot compare %v %s %v", l, n.op, r)
		}
		switch n.op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	case "+", "-", "*", "/":
		lf, lok := toFloat(l)
		rf, rok := toFloat(r)
		if !lok || !rok {
			if n.op == "+" {
				if ls, ok := l.(string); ok {
					if rs, ok := r.(string); ok {
						return ls + rs, nil
					}
				}
			}
			return nil, daqerr.Newf(daqerr.InvalidValue, "", "cannot apply %s to %v, %v", n.op, l, r)
		}
		switch n.op {
		case "+":
			return overflowGuardAdd(lf, rf)
		case "-":
			return lf - rf, nil
		case "*":
			return lf * rf, nil
		default:
			if rf == 0 {
				return nil, daqerr.New(daqerr.InvalidValue, "", "division by zero")
			}
			return lf / rf, nil
		}
	}
	return nil, daqerr.Newf(daqerr.InvalidValue, "", "unknown operator %q", n.op)
}

func overflowGuardAdd(a, b float64) (interface{}, error) {
	sum := a + b
	if math.IsInf(sum, 0) && !math.IsInf(a, 0) && !math.IsInf(b, 0) {
		return nil, daqerr.New(daqerr.InvalidValue, "", "numeric overflow during coercion")
	}
	return sum, nil
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func equalValues(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// --- tokenizer ---

type token struct {
	kind string // ident, num, str, op, lparen, rparen, lbracket, rbracket, comma, eof
	text string
}

func tokenize(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{"lparen", "("})
			i++
		case c == ')':
			toks = append(toks, token{"rparen", ")"})
			i++
		case c == '[':
			toks = append(toks, token{"lbracket", "["})
			i++
		case c == ']':
			toks = append(toks, token{"rbracket", "]"})
			i++
		case c == ',':
			toks = append(toks, token{"comma", ","})
			i++
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(src) && src[j] != c {
				j++
			}
			toks = append(toks, token{"str", src[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("+-*/<>=!&|", rune(c)):
			two := ""
			if i+1 < len(src) {
				two = src[i : i+2]
			}
			switch two {
			case "==", "!=", "<=", ">=", "&&", "||":
				toks = append(toks, token{"op", two})
				i += 2
				continue
			}
			toks = append(toks, token{"op", string(c)})
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{"num", src[i:j]})
			i = j
		case c == '$' || c == '%' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			j := i + 1
			for j < len(src) && (src[j] == '_' || src[j] >= '0' && src[j] <= '9' || src[j] >= 'a' && src[j] <= 'z' || src[j] >= 'A' && src[j] <= 'Z' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{"ident", src[i:j]})
			i = j
		default:
			i++
		}
	}
	toks = append(toks, token{"eof", ""})
	return toks
}

type exprParser struct {
	toks []token
	pos  int
	src  string
}

func (p *exprParser) peek() token { return p.toks[p.pos] }
func (p *exprParser) next() token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

var precedence = map[string]int{
	"||": 1, "&&": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5,
}

func (p *exprParser) parseExpr(minPrec int) (exprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != "op" {
			break
		}
		prec, ok := precedence[t.text]
		if !ok || prec < minPrec {
			break
		}
		p.next()
		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = binNode{op: t.text, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (exprNode, error) {
	t := p.peek()
	if t.kind == "op" && (t.text == "!" || t.text == "-") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: t.text, node: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (exprNode, error) {
	t := p.next()
	switch t.kind {
	case "num":
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, err
		}
		return litNode{f}, nil
	case "str":
		return litNode{t.text}, nil
	case "ident":
		switch t.text {
		case "true":
			return litNode{true}, nil
		case "false":
			return litNode{false}, nil
		}
		if p.peek().kind == "lparen" {
			return p.parseCall(t.text)
		}
		return identNode{name: t.text}, nil
	case "lparen":
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if p.peek().kind != "rparen" {
			return nil, fmt.Errorf("expected ')' in %q", p.src)
		}
		p.next()
		return inner, nil
	case "lbracket":
		var items []exprNode
		for p.peek().kind != "rbracket" {
			item, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if p.peek().kind == "comma" {
				p.next()
			}
		}
		p.next()
		return listNode{items: items}, nil
	}
	return nil, fmt.Errorf("unexpected token %q in expression %q", t.text, p.src)
}

func (p *exprParser) parseCall(name string) (exprNode, error) {
	p.next() // consume '('
	var args []exprNode
	for p.peek().kind != "rparen" {
		a, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.peek().kind == "comma" {
			p.next()
		}
	}
	p.next() // consume ')'
	if name == "if" {
		if len(args) != 3 {
			return nil, fmt.Errorf("if() takes 3 arguments")
		}
		return ifNode{cond: args[0], then: args[1], els: args[2]}, nil
	}
	return callNode{name: name, args: args}, nil
}
