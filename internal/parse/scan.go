package parse

import (
	"strings"
	"unicode/utf8"
)

type TokenKind int

const (
	TokenIdent TokenKind = iota + 1
	TokenQuotedIdent
	TokenString
	TokenNumber
	TokenParam
	TokenPunct
)

// Token is a lexical token with byte offsets into the scanned text.
// Comments and whitespace are not emitted.
type Token struct {
	Kind  TokenKind
	Start int
	End   int
	Text  string
}

func (t Token) Range() Range {
	return Range{Start: t.Start, End: t.End}
}

func (t Token) IsIdent() bool {
	return t.Kind == TokenIdent || t.Kind == TokenQuotedIdent
}

func (t Token) IsKeyword(keyword string) bool {
	return t.Kind == TokenIdent && strings.EqualFold(t.Text, keyword)
}

func (t Token) IsPunct(p string) bool {
	return t.Kind == TokenPunct && t.Text == p
}

// Name is the identifier as the database sees it: unquoted identifiers fold
// to lower case, quoted identifiers keep their case with the quotes removed.
func (t Token) Name() string {
	switch t.Kind {
	case TokenIdent:
		return strings.ToLower(t.Text)
	case TokenQuotedIdent:
		if len(t.Text) < 2 {
			return t.Text
		}
		quote := t.Text[:1]
		inner := t.Text[1:]
		if strings.HasSuffix(inner, quote) {
			inner = inner[:len(inner)-1]
		}
		return strings.ReplaceAll(inner, quote+quote, quote)
	default:
		return t.Text
	}
}

// Scan splits text into tokens. It never fails: unterminated strings,
// quoted identifiers and comments run to the end of the input.
func Scan(text string) []Token {
	var tokens []Token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case isSpace(c):
			i++
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			i = skipLineComment(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i = skipBlockComment(text, i)
		case c == '\'':
			end := scanQuoted(text, i, '\'', false)
			tokens = append(tokens, Token{Kind: TokenString, Start: i, End: end, Text: text[i:end]})
			i = end
		case c == '"' || c == '`':
			end := scanQuoted(text, i, c, false)
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Start: i, End: end, Text: text[i:end]})
			i = end
		case c == '$':
			end, kind := scanDollar(text, i)
			tokens = append(tokens, Token{Kind: kind, Start: i, End: end, Text: text[i:end]})
			i = end
		case isDigit(c) || (c == '.' && i+1 < len(text) && isDigit(text[i+1])):
			end := scanNumber(text, i)
			tokens = append(tokens, Token{Kind: TokenNumber, Start: i, End: end, Text: text[i:end]})
			i = end
		case isIdentStart(text, i):
			end := scanWord(text, i)
			word := text[i:end]
			if end < len(text) && text[end] == '\'' && isStringPrefix(word) {
				strEnd := scanQuoted(text, end, '\'', strings.EqualFold(word, "e"))
				tokens = append(tokens, Token{Kind: TokenString, Start: i, End: strEnd, Text: text[i:strEnd]})
				i = strEnd
				continue
			}
			tokens = append(tokens, Token{Kind: TokenIdent, Start: i, End: end, Text: word})
			i = end
		default:
			_, size := utf8.DecodeRuneInString(text[i:])
			tokens = append(tokens, Token{Kind: TokenPunct, Start: i, End: i + size, Text: text[i : i+size]})
			i += size
		}
	}
	return tokens
}

// SplitStatements returns the ranges of the statements in text, excluding
// the terminating semicolons and any surrounding comments or whitespace.
func SplitStatements(text string) []Range {
	return splitTokens(Scan(text))
}

func splitTokens(tokens []Token) []Range {
	var ranges []Range
	start := -1
	end := -1
	for _, token := range tokens {
		if token.IsPunct(";") {
			if start >= 0 {
				ranges = append(ranges, Range{Start: start, End: end})
			}
			start, end = -1, -1
			continue
		}
		if start < 0 {
			start = token.Start
		}
		end = token.End
	}
	if start >= 0 {
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}

// Chain is a dotted identifier such as billing.orders or o.id.
type Chain struct {
	Parts []Token
	// Index is the position of the first part in the tokens passed to Chains.
	Index int
}

func (c Chain) Range() Range {
	return Range{Start: c.Parts[0].Start, End: c.Parts[len(c.Parts)-1].End}
}

// Chains groups identifier tokens joined by dots. A trailing dot ends the chain.
func Chains(tokens []Token) []Chain {
	var chains []Chain
	for i := 0; i < len(tokens); {
		if !tokens[i].IsIdent() {
			i++
			continue
		}
		parts := []Token{tokens[i]}
		j := i + 1
		for j+1 < len(tokens) && tokens[j].IsPunct(".") && tokens[j].Start == parts[len(parts)-1].End &&
			tokens[j+1].IsIdent() && tokens[j+1].Start == tokens[j].End {
			parts = append(parts, tokens[j+1])
			j += 2
		}
		chains = append(chains, Chain{Parts: parts, Index: i})
		i = j
	}
	return chains
}

// TokenAt returns the index of the token containing offset, or -1.
func TokenAt(tokens []Token, offset int) int {
	for i, token := range tokens {
		if offset < token.Start {
			return -1
		}
		if offset < token.End {
			return i
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(text string, i int) bool {
	c := text[i]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentPart(c byte) bool {
	return c == '_' || c == '$' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "e", "b", "x", "n":
		return true
	}
	return false
}

func scanWord(text string, i int) int {
	for i < len(text) && isIdentPart(text[i]) {
		i++
	}
	return i
}

func scanNumber(text string, i int) int {
	for i < len(text) {
		c := text[i]
		switch {
		case isDigit(c) || c == '.' || c == '_':
			i++
		case (c == 'e' || c == 'E') && i+1 < len(text):
			i++
			if text[i] == '+' || text[i] == '-' {
				i++
			}
		default:
			return i
		}
	}
	return i
}

func scanQuoted(text string, start int, quote byte, backslash bool) int {
	i := start + 1
	for i < len(text) {
		c := text[i]
		if backslash && c == '\\' {
			i += 2
			continue
		}
		if c == quote {
			if i+1 < len(text) && text[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(text)
}

// scanDollar handles positional parameters ($1) and dollar-quoted strings
// ($$...$$, $tag$...$tag$).
func scanDollar(text string, start int) (int, TokenKind) {
	i := start + 1
	if i < len(text) && isDigit(text[i]) {
		for i < len(text) && isDigit(text[i]) {
			i++
		}
		return i, TokenParam
	}
	for i < len(text) && isIdentPart(text[i]) && text[i] != '$' {
		i++
	}
	if i >= len(text) || text[i] != '$' {
		return start + 1, TokenPunct
	}
	tag := text[start : i+1]
	closing := strings.Index(text[i+1:], tag)
	if closing < 0 {
		return len(text), TokenString
	}
	return i + 1 + closing + len(tag), TokenString
}

func skipLineComment(text string, i int) int {
	end := strings.IndexByte(text[i:], '\n')
	if end < 0 {
		return len(text)
	}
	return i + end + 1
}

func skipBlockComment(text string, i int) int {
	depth := 0
	for i < len(text) {
		switch {
		case strings.HasPrefix(text[i:], "/*"):
			depth++
			i += 2
		case strings.HasPrefix(text[i:], "*/"):
			depth--
			i += 2
			if depth == 0 {
				return i
			}
		default:
			i++
		}
	}
	return len(text)
}
