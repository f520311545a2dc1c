package pagination

import (
	"net/url"
	"strconv"
)

// InitialCursor starts a cursor chain.
const InitialCursor = "*"

// TokenKind distinguishes offset and cursor tokens.
type TokenKind int

const (
	// TokenOffset selects a page by number.
	TokenOffset TokenKind = iota

	// TokenCursor selects a page by an opaque server cursor.
	TokenCursor
)

// PageToken identifies which slice of results a fetch targets.
type PageToken struct {
	Kind    TokenKind
	Page    int
	Cursor  string
	PerPage int
}

// Offset returns a token for page number page (1-based).
func Offset(page, perPage int) PageToken {
	return PageToken{Kind: TokenOffset, Page: page, PerPage: perPage}
}

// Cursor returns a token for an opaque cursor.
func Cursor(cursor string, perPage int) PageToken {
	return PageToken{Kind: TokenCursor, Cursor: cursor, PerPage: perPage}
}

// Params renders the paging parameters of the token.
func (t PageToken) Params() url.Values {
	params := url.Values{}
	if t.PerPage > 0 {
		params.Set("per-page", strconv.Itoa(t.PerPage))
	}
	if t.Kind == TokenCursor {
		params.Set("cursor", t.Cursor)
	} else {
		params.Set("page", strconv.Itoa(t.Page))
	}
	return params
}

// String returns a short description for logs.
func (t PageToken) String() string {
	if t.Kind == TokenCursor {
		return "cursor:" + t.Cursor
	}
	return "page:" + strconv.Itoa(t.Page)
}
