package executor

import (
	"fmt"
	"strings"
)

// readKeywords are the leading keywords accepted when writes are disabled.
// SET, PREPARE, EXECUTE and DEALLOCATE carry the dynamic pivot idiom.
var readKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true, "DESC": true,
	"EXPLAIN": true, "SET": true, "PREPARE": true, "EXECUTE": true, "DEALLOCATE": true,
}

// writeWords are refused anywhere outside literals, which catches writable
// CTEs and PREPARE ... AS DELETE.
var writeWords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "TRUNCATE": true,
	"DROP": true, "ALTER": true, "CREATE": true, "GRANT": true, "REVOKE": true,
	"RENAME": true, "OUTFILE": true, "DUMPFILE": true,
}

// setWords are refused in SET statements since they change server or
// transaction state.
var setWords = map[string]bool{
	"GLOBAL": true, "PERSIST": true, "PERSIST_ONLY": true, "TRANSACTION": true,
	"CHARACTERISTICS": true, "ROLE": true, "SESSION_AUTHORIZATION": true, "PASSWORD": true,
}

// statementGuard checks the statements of one batch in order. It remembers
// user variables assigned a plain string literal so PREPARE ... FROM @var can
// be checked against the text it will run.
type statementGuard struct {
	literals map[string]string
}

func newStatementGuard() *statementGuard {
	return &statementGuard{literals: make(map[string]string)}
}

func (g *statementGuard) check(stmt string) error {
	tokens := significant(lexSQL(stmt))
	keyword := Keyword(stmt)
	if keyword == "" {
		return nil
	}
	if !readKeywords[keyword] {
		return refuse(keyword)
	}
	words := upperWords(tokens)

	switch keyword {
	case "SHOW", "DESCRIBE", "DESC":
		return nil
	case "SET":
		for _, word := range words[1:] {
			if setWords[word] || strings.Contains(word, "READ_ONLY") {
				return refuse("SET " + word)
			}
		}
		g.remember(tokens)
	case "EXPLAIN":
		for _, word := range words[1:] {
			if word == "ANALYZE" {
				return refuse("EXPLAIN ANALYZE")
			}
		}
	case "PREPARE":
		if text, ok := g.preparedText(tokens); ok {
			for _, inner := range SplitStatements(text) {
				if err := g.check(inner); err != nil {
					return err
				}
			}
		}
	}
	for _, word := range words[1:] {
		if writeWords[word] {
			return refuse(word)
		}
	}
	return nil
}

// remember records SET @name = 'literal'. Any other assignment to @name
// forgets it.
func (g *statementGuard) remember(tokens []sqlToken) {
	if len(tokens) < 4 || tokens[1].text != "@" || tokens[2].kind != tokenWord {
		return
	}
	name := strings.ToLower(tokens[2].text)
	rest := tokens[3:]
	for len(rest) > 0 && (rest[0].text == ":" || rest[0].text == "=") {
		rest = rest[1:]
	}
	if len(rest) == 1 && rest[0].kind == tokenQuoted && strings.HasPrefix(rest[0].text, "'") {
		g.literals[name] = unquote(rest[0].text)
		return
	}
	delete(g.literals, name)
}

// preparedText returns the statement text of PREPARE name FROM 'text' or
// FROM @var when it is known before execution.
func (g *statementGuard) preparedText(tokens []sqlToken) (string, bool) {
	for i, tok := range tokens {
		if tok.kind != tokenWord || !strings.EqualFold(tok.text, "FROM") || i+1 >= len(tokens) {
			continue
		}
		next := tokens[i+1]
		if next.kind == tokenQuoted && strings.HasPrefix(next.text, "'") {
			return unquote(next.text), true
		}
		if next.text == "@" && i+2 < len(tokens) && tokens[i+2].kind == tokenWord {
			text, ok := g.literals[strings.ToLower(tokens[i+2].text)]
			return text, ok
		}
		return "", false
	}
	return "", false
}

func refuse(what string) error {
	return fmt.Errorf("%w: %s", ErrWriteNotAllowed, what)
}

func significant(tokens []sqlToken) []sqlToken {
	out := make([]sqlToken, 0, len(tokens))
	for _, tok := range tokens {
		if tok.kind != tokenSpace && tok.kind != tokenComment {
			out = append(out, tok)
		}
	}
	return out
}

func upperWords(tokens []sqlToken) []string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok.kind == tokenWord {
			words = append(words, strings.ToUpper(tok.text))
		}
	}
	return words
}

func unquote(literal string) string {
	if len(literal) >= 2 && literal[len(literal)-1] == literal[0] {
		literal = literal[1 : len(literal)-1]
	} else if len(literal) >= 1 {
		literal = literal[1:]
	}
	literal = strings.ReplaceAll(literal, `\'`, `'`)
	return strings.ReplaceAll(literal, `''`, `'`)
}
