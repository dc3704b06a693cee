package parse

import "strings"

var reserved = map[string]struct{}{}

func init() {
	for _, kw := range strings.Fields(`
		all alter analyse analyze and any as asc between by case cast check collate
		column constraint create cross current_date current_time current_timestamp
		current_user default delete desc distinct do drop else end except exists
		false fetch for foreign from full grant group having ilike in inner insert
		intersect into is join lateral leading left like limit natural not null
		offset on only or order outer primary references returning right select
		session_user set similar some symmetric table then to trailing true truncate
		union unique update user using values when where window with`) {
		reserved[kw] = struct{}{}
	}
}

// IsReserved reports whether word is a reserved SQL keyword.
func IsReserved(word string) bool {
	_, ok := reserved[strings.ToLower(word)]
	return ok
}

// IsKeywordToken reports whether token is an unquoted reserved keyword.
func IsKeywordToken(token Token) bool {
	return token.Kind == TokenIdent && IsReserved(token.Text)
}

// relationKeywords introduce a relation reference when they are the nearest
// keyword before it.
var relationKeywords = []string{"from", "join", "into", "update", "table", "only"}

// InRelationPosition reports whether a reference whose first token is
// tokens[start] appears where a relation is expected. Aliases, commas and
// earlier references are skipped back to the nearest keyword.
func InRelationPosition(tokens []Token, start int) bool {
	for j := start - 1; j >= 0; j-- {
		prev := tokens[j]
		switch {
		case isRelationKeyword(prev):
			return true
		case prev.IsKeyword("as"):
		case IsKeywordToken(prev):
			return false
		case prev.IsIdent(), prev.IsPunct("."), prev.IsPunct(","):
		default:
			return false
		}
	}
	return false
}

func isRelationKeyword(token Token) bool {
	for _, kw := range relationKeywords {
		if token.IsKeyword(kw) {
			return true
		}
	}
	return false
}
