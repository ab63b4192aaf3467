package framescript

import (
	"fmt"
	"strconv"
	"strings"
)

var blockKeywords = map[string]bool{
	"for": true, "while": true, "def": true, "class": true, "with": true, "try": true,
	"if": true, "elif": true, "else": true, "return": true, "yield": true, "global": true,
	"nonlocal": true, "del": true, "async": true, "await": true, "raise": true, "assert": true,
	"except": true, "finally": true, "break": true, "continue": true, "lambda": true,
}

var allowedModules = map[string]bool{"pandas": true, "numpy": true}

type parser struct {
	toks      []token
	pos       int
	queryMode bool
}

func parseScript(src string) ([]stmt, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var out []stmt
	for {
		p.skipNewlines()
		if p.peek().kind == tokEOF {
			return out, nil
		}
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
}

// parseExpression parses a single expression. In query mode @name refers to a
// script variable and bare names refer to columns.
func parseExpression(src string, queryMode bool) (expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, queryMode: queryMode}
	p.skipNewlines()
	e, err := p.test()
	if err != nil {
		return nil, err
	}
	p.skipNewlines()
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %s", describe(p.peek()))
	}
	return e, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(op string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == op
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokName && t.text == word
}

func (p *parser) acceptOp(op string) bool {
	if p.isOp(op) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return p.errorf("expected %q, found %s", op, describe(p.peek()))
	}
	return nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &Error{Line: p.peek().line, Err: fmt.Errorf("syntax error: "+format, args...)}
}

func (p *parser) unsupported(format string, args ...any) error {
	return &Error{Line: p.peek().line, Err: fmt.Errorf("%w: "+format, append([]any{ErrUnsupported}, args...)...)}
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "end of line"
	case tokString:
		return "string " + strconv.Quote(t.text)
	default:
		return strconv.Quote(t.text)
	}
}

func (p *parser) endStatement() error {
	switch p.peek().kind {
	case tokNewline:
		p.pos++
		return nil
	case tokEOF:
		return nil
	default:
		return p.errorf("unexpected %s", describe(p.peek()))
	}
}

func (p *parser) statement() (stmt, error) {
	line := p.peek().line
	if t := p.peek(); t.kind == tokName {
		switch {
		case t.text == "import" || t.text == "from":
			return p.importStatement()
		case t.text == "pass":
			p.pos++
			return nil, p.endStatement()
		case blockKeywords[t.text]:
			return nil, p.unsupported("%q statements are not allowed", t.text)
		}
	}

	first, err := p.testList()
	if err != nil {
		return nil, err
	}
	if p.isOp("=") {
		targets := []expr{first}
		var value expr
		for p.acceptOp("=") {
			v, err := p.testList()
			if err != nil {
				return nil, err
			}
			if p.isOp("=") {
				targets = append(targets, v)
				continue
			}
			value = v
		}
		for _, target := range targets {
			if err := checkTarget(target); err != nil {
				return nil, &Error{Line: line, Err: err}
			}
		}
		return &assignStmt{line: line, targets: targets, value: value}, p.endStatement()
	}
	if t := p.peek(); t.kind == tokOp && strings.HasSuffix(t.text, "=") && len(t.text) >= 2 && t.text != "==" && t.text != "!=" && t.text != "<=" && t.text != ">=" {
		p.pos++
		if err := checkTarget(first); err != nil {
			return nil, &Error{Line: line, Err: err}
		}
		value, err := p.testList()
		if err != nil {
			return nil, err
		}
		return &augAssignStmt{line: line, target: first, op: strings.TrimSuffix(t.text, "="), value: value}, p.endStatement()
	}
	return &exprStmt{line: line, x: first}, p.endStatement()
}

func checkTarget(target expr) error {
	switch t := target.(type) {
	case *nameExpr, *indexExpr, *attrExpr:
		return nil
	case *tupleExpr:
		for _, elt := range t.elts {
			if err := checkTarget(elt); err != nil {
				return err
			}
		}
		return nil
	case *listExpr:
		for _, elt := range t.elts {
			if err := checkTarget(elt); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("syntax error: cannot assign to expression")
	}
}

func (p *parser) importStatement() (stmt, error) {
	line := p.peek().line
	if p.next().text == "from" {
		module := p.next()
		return nil, p.unsupported("from %s import ... is not allowed", module.text)
	}
	aliases := map[string]string{}
	for {
		module := p.next()
		if module.kind != tokName {
			return nil, p.errorf("expected module name")
		}
		name := module.text
		for p.acceptOp(".") {
			part := p.next()
			name += "." + part.text
		}
		if !allowedModules[name] {
			return nil, &Error{Line: line, Err: fmt.Errorf("%w: import of module %q", ErrUnsupported, name)}
		}
		alias := name
		if p.isKeyword("as") {
			p.pos++
			aliasTok := p.next()
			if aliasTok.kind != tokName {
				return nil, p.errorf("expected alias name")
			}
			alias = aliasTok.text
		}
		aliases[alias] = name
		if !p.acceptOp(",") {
			break
		}
	}
	return &importStmt{line: line, aliases: aliases}, p.endStatement()
}

func (p *parser) testList() (expr, error) {
	first, err := p.test()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elts := []expr{first}
	for p.acceptOp(",") {
		if p.atExprEnd() {
			break
		}
		e, err := p.test()
		if err != nil {
			return nil, err
		}
		elts = append(elts, e)
	}
	return &tupleExpr{elts: elts}, nil
}

func (p *parser) atExprEnd() bool {
	t := p.peek()
	if t.kind == tokNewline || t.kind == tokEOF {
		return true
	}
	return t.kind == tokOp && (t.text == "=" || t.text == ")" || t.text == "]" || t.text == "}")
}

func (p *parser) test() (expr, error) {
	if p.isKeyword("lambda") {
		return nil, p.unsupported("lambda expressions are not allowed")
	}
	e, err := p.orTest()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("if") {
		p.pos++
		cond, err := p.orTest()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("else") {
			return nil, p.errorf("expected 'else' in conditional expression")
		}
		p.pos++
		orElse, err := p.test()
		if err != nil {
			return nil, err
		}
		return &condExpr{cond: cond, then: e, orElse: orElse}, nil
	}
	return e, nil
}

func (p *parser) orTest() (expr, error) {
	left, err := p.andTest()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.pos++
		right, err := p.andTest()
		if err != nil {
			return nil, err
		}
		left = &boolExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) andTest() (expr, error) {
	left, err := p.notTest()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.pos++
		right, err := p.notTest()
		if err != nil {
			return nil, err
		}
		left = &boolExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) notTest() (expr, error) {
	if p.isKeyword("not") {
		p.pos++
		x, err := p.notTest()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: "not", x: x}, nil
	}
	return p.comparison()
}

func (p *parser) compareOp() (string, bool) {
	t := p.peek()
	if t.kind == tokOp {
		switch t.text {
		case "<", ">", "==", ">=", "<=", "!=":
			p.pos++
			return t.text, true
		}
		return "", false
	}
	if t.kind != tokName {
		return "", false
	}
	switch t.text {
	case "in":
		p.pos++
		return "in", true
	case "not":
		if nt := p.toks[p.pos+1]; nt.kind == tokName && nt.text == "in" {
			p.pos += 2
			return "not in", true
		}
	case "is":
		p.pos++
		if p.isKeyword("not") {
			p.pos++
			return "is not", true
		}
		return "is", true
	}
	return "", false
}

func (p *parser) comparison() (expr, error) {
	left, err := p.bitOr()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []expr
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.bitOr()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rights = append(rights, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &compareExpr{left: left, ops: ops, rights: rights}, nil
}

func (p *parser) binaryLevel(ops []string, operand func() (expr, error)) (expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		matched := ""
		for _, op := range ops {
			if p.isOp(op) {
				matched = op
				break
			}
		}
		if matched == "" {
			return left, nil
		}
		p.pos++
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: matched, left: left, right: right}
	}
}

func (p *parser) bitOr() (expr, error)  { return p.binaryLevel([]string{"|"}, p.bitXor) }
func (p *parser) bitXor() (expr, error) { return p.binaryLevel([]string{"^"}, p.bitAnd) }
func (p *parser) bitAnd() (expr, error) { return p.binaryLevel([]string{"&"}, p.arith) }
func (p *parser) arith() (expr, error)  { return p.binaryLevel([]string{"+", "-"}, p.term) }
func (p *parser) term() (expr, error) {
	return p.binaryLevel([]string{"*", "/", "//", "%"}, p.factor)
}

func (p *parser) factor() (expr, error) {
	for _, op := range []string{"-", "+", "~"} {
		if p.isOp(op) {
			p.pos++
			x, err := p.factor()
			if err != nil {
				return nil, err
			}
			if c, ok := x.(*constExpr); ok && op == "-" {
				switch v := c.value.(type) {
				case int64:
					return &constExpr{value: -v}, nil
				case float64:
					return &constExpr{value: -v}, nil
				}
			}
			return &unaryExpr{op: op, x: x}, nil
		}
	}
	return p.power()
}

func (p *parser) power() (expr, error) {
	base, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("**") {
		exponent, err := p.factor()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{op: "**", left: base, right: exponent}, nil
	}
	return base, nil
}

func (p *parser) postfix() (expr, error) {
	x, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("("):
			call, err := p.callArgs(x)
			if err != nil {
				return nil, err
			}
			x = call
		case p.acceptOp("["):
			index, err := p.subscript()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &indexExpr{x: x, index: index}
		case p.acceptOp("."):
			name := p.next()
			if name.kind != tokName {
				return nil, p.errorf("expected attribute name")
			}
			x = &attrExpr{x: x, name: name.text}
		default:
			return x, nil
		}
	}
}

func (p *parser) callArgs(fn expr) (expr, error) {
	call := &callExpr{fn: fn}
	for !p.acceptOp(")") {
		if p.isOp("*") || p.isOp("**") {
			return nil, p.unsupported("argument unpacking is not allowed")
		}
		if t := p.peek(); t.kind == tokName && p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "=" {
			p.pos += 2
			value, err := p.test()
			if err != nil {
				return nil, err
			}
			call.kwargs = append(call.kwargs, keyword{name: t.text, value: value})
		} else {
			if len(call.kwargs) > 0 {
				return nil, p.errorf("positional argument follows keyword argument")
			}
			arg, err := p.test()
			if err != nil {
				return nil, err
			}
			if p.isKeyword("for") {
				return nil, p.unsupported("generator expressions are not allowed")
			}
			call.args = append(call.args, arg)
		}
		if !p.acceptOp(",") {
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			break
		}
	}
	return call, nil
}

func (p *parser) subscript() (expr, error) {
	first, err := p.subscriptItem()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elts := []expr{first}
	for p.acceptOp(",") {
		if p.isOp("]") {
			break
		}
		item, err := p.subscriptItem()
		if err != nil {
			return nil, err
		}
		elts = append(elts, item)
	}
	return &tupleExpr{elts: elts}, nil
}

func (p *parser) subscriptItem() (expr, error) {
	var lo expr
	if !p.isOp(":") {
		e, err := p.test()
		if err != nil {
			return nil, err
		}
		if !p.isOp(":") {
			return e, nil
		}
		lo = e
	}
	p.pos++
	s := &sliceExpr{lo: lo}
	if !p.isOp(":") && !p.isOp("]") && !p.isOp(",") {
		hi, err := p.test()
		if err != nil {
			return nil, err
		}
		s.hi = hi
	}
	if p.acceptOp(":") && !p.isOp("]") && !p.isOp(",") {
		step, err := p.test()
		if err != nil {
			return nil, err
		}
		s.step = step
	}
	return s, nil
}

func (p *parser) atom() (expr, error) {
	t := p.peek()
	switch t.kind {
	case tokName:
		p.pos++
		switch t.text {
		case "True":
			return &constExpr{value: true}, nil
		case "False":
			return &constExpr{value: false}, nil
		case "None":
			return &constExpr{value: nil}, nil
		case "lambda":
			return nil, p.unsupported("lambda expressions are not allowed")
		}
		if blockKeywords[t.text] {
			return nil, p.unsupported("%q is not allowed in expressions", t.text)
		}
		return &nameExpr{name: t.text}, nil
	case tokNumber:
		p.pos++
		return parseNumber(t)
	case tokString:
		return p.stringLiteral()
	case tokOp:
		switch t.text {
		case "(":
			p.pos++
			if p.acceptOp(")") {
				return &tupleExpr{}, nil
			}
			e, err := p.testList()
			if err != nil {
				return nil, err
			}
			if p.isKeyword("for") {
				return nil, p.unsupported("generator expressions are not allowed")
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "[":
			p.pos++
			return p.listLiteral()
		case "{":
			p.pos++
			return p.dictLiteral()
		case "@":
			if !p.queryMode {
				return nil, p.errorf("unexpected '@'")
			}
			p.pos++
			name := p.next()
			if name.kind != tokName {
				return nil, p.errorf("expected variable name after '@'")
			}
			return &atExpr{name: name.text}, nil
		}
	}
	return nil, p.errorf("unexpected %s", describe(t))
}

func parseNumber(t token) (expr, error) {
	if !strings.ContainsAny(t.text, ".eE") {
		if v, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return &constExpr{value: v}, nil
		}
	}
	v, err := strconv.ParseFloat(t.text, 64)
	if err != nil {
		return nil, &Error{Line: t.line, Err: fmt.Errorf("syntax error: invalid number %q", t.text)}
	}
	return &constExpr{value: v}, nil
}

// stringLiteral concatenates adjacent string literals, any of which may be an
// f-string.
func (p *parser) stringLiteral() (expr, error) {
	var parts []fstringPart
	hasF := false
	for p.peek().kind == tokString {
		t := p.next()
		if !t.fstring {
			parts = append(parts, fstringPart{literal: t.text})
			continue
		}
		hasF = true
		fparts, err := parseFString(t)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fparts...)
	}
	if !hasF {
		var b strings.Builder
		for _, part := range parts {
			b.WriteString(part.literal)
		}
		return &constExpr{value: b.String()}, nil
	}
	return &fstringExpr{parts: parts}, nil
}

func parseFString(t token) ([]fstringPart, error) {
	src := []rune(t.text)
	var parts []fstringPart
	var literal strings.Builder
	fail := func(msg string) error {
		return &Error{Line: t.line, Err: fmt.Errorf("syntax error: f-string: %s", msg)}
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '}' {
			if i+1 < len(src) && src[i+1] == '}' {
				literal.WriteRune('}')
				i++
				continue
			}
			return nil, fail("single '}' is not allowed")
		}
		if c != '{' {
			literal.WriteRune(c)
			continue
		}
		if i+1 < len(src) && src[i+1] == '{' {
			literal.WriteRune('{')
			i++
			continue
		}
		if literal.Len() > 0 {
			parts = append(parts, fstringPart{literal: literal.String()})
			literal.Reset()
		}
		depth := 0
		var quote rune
		end := -1
		for j := i + 1; j < len(src) && end < 0; j++ {
			switch ch := src[j]; {
			case quote != 0:
				if ch == quote {
					quote = 0
				}
			case ch == '\'' || ch == '"':
				quote = ch
			case ch == '(' || ch == '[' || ch == '{':
				depth++
			case ch == ')' || ch == ']' || (ch == '}' && depth > 0):
				depth--
			case ch == '}' || ((ch == ':' || ch == '!') && depth == 0 && !(ch == '!' && j+1 < len(src) && src[j+1] == '=')):
				end = j
			}
		}
		if end < 0 {
			return nil, fail("expecting '}'")
		}
		exprText := string(src[i+1 : end])
		part := fstringPart{}
		j := end
		if src[j] == '!' {
			if j+1 >= len(src) {
				return nil, fail("missing conversion")
			}
			part.conv = byte(src[j+1])
			j += 2
		}
		if j < len(src) && src[j] == ':' {
			specEnd := j + 1
			for specEnd < len(src) && src[specEnd] != '}' {
				specEnd++
			}
			part.spec = string(src[j+1 : specEnd])
			j = specEnd
		}
		if j >= len(src) || src[j] != '}' {
			return nil, fail("expecting '}'")
		}
		e, err := parseExpression(exprText, false)
		if err != nil {
			return nil, err
		}
		part.expr = e
		parts = append(parts, part)
		i = j
	}
	if literal.Len() > 0 {
		parts = append(parts, fstringPart{literal: literal.String()})
	}
	return parts, nil
}

func (p *parser) listLiteral() (expr, error) {
	list := &listExpr{}
	for !p.acceptOp("]") {
		e, err := p.test()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("for") {
			return nil, p.unsupported("list comprehensions are not allowed")
		}
		list.elts = append(list.elts, e)
		if !p.acceptOp(",") {
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			break
		}
	}
	return list, nil
}

func (p *parser) dictLiteral() (expr, error) {
	dict := &dictExpr{}
	for !p.acceptOp("}") {
		key, err := p.test()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.test()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("for") {
			return nil, p.unsupported("dict comprehensions are not allowed")
		}
		dict.keys = append(dict.keys, key)
		dict.values = append(dict.values, value)
		if !p.acceptOp(",") {
			if err := p.expectOp("}"); err != nil {
				return nil, err
			}
			break
		}
	}
	return dict, nil
}
