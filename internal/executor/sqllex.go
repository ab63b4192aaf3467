package executor

import "strings"

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenQuoted
	tokenComment
	tokenSpace
	tokenSemicolon
	tokenSymbol
)

type sqlToken struct {
	kind tokenKind
	text string
}

// lexSQL cuts sqlText into words, quoted runs, comments and single-byte
// symbols. Quoted runs cover '...', "...", `...` and Postgres $tag$...$tag$
// bodies. Comments are --, /* */ and MySQL # line comments; #> and #- stay
// operators. Unterminated quotes and comments run to the end of the text.
func lexSQL(sqlText string) []sqlToken {
	var tokens []sqlToken
	emit := func(kind tokenKind, start, end int) {
		tokens = append(tokens, sqlToken{kind: kind, text: sqlText[start:end]})
	}
	n := len(sqlText)
	for i := 0; i < n; {
		start := i
		c := sqlText[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(sqlText, i)
			emit(tokenQuoted, start, i)
		case c == '$' && dollarTag(sqlText, i) != "":
			tag := dollarTag(sqlText, i)
			body := i + len(tag)
			if end := strings.Index(sqlText[body:], tag); end >= 0 {
				i = body + end + len(tag)
			} else {
				i = n
			}
			emit(tokenQuoted, start, i)
		case strings.HasPrefix(sqlText[i:], "--") || isHashComment(sqlText, i):
			if end := strings.IndexByte(sqlText[i:], '\n'); end >= 0 {
				i += end
			} else {
				i = n
			}
			emit(tokenComment, start, i)
		case strings.HasPrefix(sqlText[i:], "/*"):
			if end := strings.Index(sqlText[i+2:], "*/"); end >= 0 {
				i += 2 + end + 2
			} else {
				i = n
			}
			emit(tokenComment, start, i)
		case c == ';':
			i++
			emit(tokenSemicolon, start, i)
		case isSpace(c):
			for i < n && isSpace(sqlText[i]) {
				i++
			}
			emit(tokenSpace, start, i)
		case isWordByte(c):
			for i < n && isWordByte(sqlText[i]) {
				i++
			}
			emit(tokenWord, start, i)
		default:
			i++
			emit(tokenSymbol, start, i)
		}
	}
	return tokens
}

func skipQuoted(s string, i int) int {
	quote := s[i]
	for i++; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			return i + 1
		}
	}
	return len(s)
}

// dollarTag returns the opening $tag$ at s[i], or "" when s[i] does not start
// one. Positional parameters such as $1 and identifiers like a$b are not tags.
func dollarTag(s string, i int) string {
	if i > 0 && isWordByte(s[i-1]) {
		return ""
	}
	j := i + 1
	if j < len(s) && s[j] >= '0' && s[j] <= '9' {
		return ""
	}
	for j < len(s) && isWordByte(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[i : j+1]
	}
	return ""
}

func isHashComment(s string, i int) bool {
	if s[i] != '#' {
		return false
	}
	return i+1 >= len(s) || (s[i+1] != '>' && s[i+1] != '-')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
