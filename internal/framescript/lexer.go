package framescript

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokName
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind    tokenKind
	text    string
	line    int
	fstring bool
}

var operators = []string{
	"**=", "//=",
	"**", "//", "==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=",
	"+", "-", "*", "/", "%", "<", ">", "=", "(", ")", "[", "]", "{", "}",
	",", ":", ".", "@", "~", "&", "|", "^",
}

type lexer struct {
	src    []rune
	pos    int
	line   int
	depth  int
	tokens []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: []rune(src), line: 1}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.tokens, nil
}

func (lx *lexer) run() error {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.newline()
			lx.line++
			lx.pos++
		case c == ';':
			lx.newline()
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f':
			lx.pos++
		case c == '#':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '\\' && lx.peekAt(1) == '\n':
			lx.pos += 2
			lx.line++
		case c == '\\' && lx.peekAt(1) == '\r' && lx.peekAt(2) == '\n':
			lx.pos += 3
			lx.line++
		case c == '`':
			if err := lx.backtickName(); err != nil {
				return err
			}
		case c == '_' || unicode.IsLetter(c):
			if err := lx.name(); err != nil {
				return err
			}
		case unicode.IsDigit(c) || (c == '.' && unicode.IsDigit(lx.peekAt(1))):
			if err := lx.number(); err != nil {
				return err
			}
		case c == '\'' || c == '"':
			if err := lx.str(false, false); err != nil {
				return err
			}
		default:
			if err := lx.operator(); err != nil {
				return err
			}
		}
	}
	lx.newline()
	lx.tokens = append(lx.tokens, token{kind: tokEOF, line: lx.line})
	return nil
}

func (lx *lexer) peekAt(offset int) rune {
	if lx.pos+offset < len(lx.src) {
		return lx.src[lx.pos+offset]
	}
	return 0
}

func (lx *lexer) emit(kind tokenKind, text string) {
	lx.tokens = append(lx.tokens, token{kind: kind, text: text, line: lx.line})
}

// newline ends a logical line unless brackets are open.
func (lx *lexer) newline() {
	if lx.depth > 0 || len(lx.tokens) == 0 || lx.tokens[len(lx.tokens)-1].kind == tokNewline {
		return
	}
	lx.emit(tokNewline, "")
}

func (lx *lexer) name() error {
	start := lx.pos
	for lx.pos < len(lx.src) && (lx.src[lx.pos] == '_' || unicode.IsLetter(lx.src[lx.pos]) || unicode.IsDigit(lx.src[lx.pos])) {
		lx.pos++
	}
	word := string(lx.src[start:lx.pos])
	if lx.pos < len(lx.src) && (lx.src[lx.pos] == '\'' || lx.src[lx.pos] == '"') {
		switch strings.ToLower(word) {
		case "r", "u", "b", "br", "rb":
			return lx.str(strings.ContainsRune(strings.ToLower(word), 'r'), false)
		case "f":
			return lx.str(false, true)
		case "rf", "fr":
			return lx.str(true, true)
		}
	}
	lx.emit(tokName, word)
	return nil
}

func (lx *lexer) backtickName() error {
	lx.pos++
	start := lx.pos
	for lx.pos < len(lx.src) && lx.src[lx.pos] != '`' {
		if lx.src[lx.pos] == '\n' {
			return fmt.Errorf("line %d: unterminated backtick name", lx.line)
		}
		lx.pos++
	}
	if lx.pos >= len(lx.src) {
		return fmt.Errorf("line %d: unterminated backtick name", lx.line)
	}
	lx.emit(tokName, string(lx.src[start:lx.pos]))
	lx.pos++
	return nil
}

func (lx *lexer) number() error {
	start := lx.pos
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if unicode.IsDigit(c) || c == '_' || c == '.' {
			lx.pos++
			continue
		}
		if (c == 'e' || c == 'E') && lx.pos > start {
			lx.pos++
			if lx.pos < len(lx.src) && (lx.src[lx.pos] == '+' || lx.src[lx.pos] == '-') {
				lx.pos++
			}
			continue
		}
		break
	}
	if lx.pos < len(lx.src) && (unicode.IsLetter(lx.src[lx.pos]) || lx.src[lx.pos] == '_') {
		return fmt.Errorf("line %d: %w: numeric literal %q", lx.line, ErrUnsupported, string(lx.src[start:lx.pos+1]))
	}
	lx.emit(tokNumber, strings.ReplaceAll(string(lx.src[start:lx.pos]), "_", ""))
	return nil
}

func (lx *lexer) str(raw, fstring bool) error {
	quote := lx.src[lx.pos]
	triple := lx.peekAt(1) == quote && lx.peekAt(2) == quote
	if triple {
		lx.pos += 3
	} else {
		lx.pos++
	}
	startLine := lx.line
	var b strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return fmt.Errorf("line %d: unterminated string literal", startLine)
		}
		c := lx.src[lx.pos]
		if c == quote {
			if !triple {
				lx.pos++
				break
			}
			if lx.peekAt(1) == quote && lx.peekAt(2) == quote {
				lx.pos += 3
				break
			}
		}
		if c == '\n' {
			if !triple {
				return fmt.Errorf("line %d: unterminated string literal", startLine)
			}
			lx.line++
		}
		if c == '\\' && lx.pos+1 < len(lx.src) {
			next := lx.src[lx.pos+1]
			if raw {
				b.WriteRune(c)
				b.WriteRune(next)
				lx.pos += 2
				continue
			}
			consumed, err := lx.escape(&b)
			if err != nil {
				return err
			}
			lx.pos += consumed
			continue
		}
		b.WriteRune(c)
		lx.pos++
	}
	lx.tokens = append(lx.tokens, token{kind: tokString, text: b.String(), line: startLine, fstring: fstring})
	return nil
}

// escape decodes the escape sequence at lx.pos and returns its length.
func (lx *lexer) escape(b *strings.Builder) (int, error) {
	next := lx.src[lx.pos+1]
	switch next {
	case 'n':
		b.WriteRune('\n')
	case 't':
		b.WriteRune('\t')
	case 'r':
		b.WriteRune('\r')
	case '0':
		b.WriteRune(0)
	case '\\', '\'', '"':
		b.WriteRune(next)
	case '\n':
		lx.line++
	case 'x', 'u':
		width := 2
		if next == 'u' {
			width = 4
		}
		end := lx.pos + 2 + width
		if end > len(lx.src) {
			return 0, fmt.Errorf("line %d: truncated \\%c escape", lx.line, next)
		}
		code, err := strconv.ParseUint(string(lx.src[lx.pos+2:end]), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("line %d: invalid \\%c escape", lx.line, next)
		}
		b.WriteRune(rune(code))
		return 2 + width, nil
	default:
		b.WriteRune('\\')
		b.WriteRune(next)
	}
	return 2, nil
}

func (lx *lexer) operator() error {
	rest := string(lx.src[lx.pos:min(lx.pos+3, len(lx.src))])
	for _, op := range operators {
		if !strings.HasPrefix(rest, op) {
			continue
		}
		switch op {
		case "(", "[", "{":
			lx.depth++
		case ")", "]", "}":
			if lx.depth > 0 {
				lx.depth--
			}
		}
		lx.emit(tokOp, op)
		lx.pos += len([]rune(op))
		return nil
	}
	if lx.src[lx.pos] == '!' {
		lx.emit(tokOp, "!")
		lx.pos++
		return nil
	}
	return fmt.Errorf("line %d: unexpected character %q", lx.line, lx.src[lx.pos])
}
