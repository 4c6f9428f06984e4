package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is applied when the caller omits the limit parameter.
	DefaultLimit = 10
	// MaxLimit caps how many rows one page may carry.
	MaxLimit = 100
)

// Params carries validated offset pagination values. Page is 1-based.
type Params struct {
	Page  int
	Limit int
}

// Parse reads page and limit from query values. Missing values fall back to
// page 1 and DefaultLimit; malformed or non-positive values are rejected,
// and limits above MaxLimit are clamped.
func Parse(query url.Values) (Params, error) {
	params := Params{Page: 1, Limit: DefaultLimit}

	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, fmt.Errorf("page must be a positive integer")
		}
		params.Page = page
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Params{}, fmt.Errorf("limit must be a positive integer")
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		params.Limit = limit
	}

	return params, nil
}
