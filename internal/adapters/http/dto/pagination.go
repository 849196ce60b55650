package dto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Page size bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ErrInvalidCursor is returned when a cursor was not produced by this service.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// PageRequest holds the query parameters of a list endpoint.
type PageRequest struct {
	// Cursor is the opaque NextCursor of the previous page.
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit"  validate:"omitempty,gte=1,lte=100"`
}

// Size returns the requested page size clamped to [1, MaxPageSize].
func (p *PageRequest) Size() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageSize
	case p.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return p.Limit
	}
}

// After returns the key the page starts after, or "" for the first page.
func (p *PageRequest) After() (string, error) {
	if p.Cursor == "" {
		return "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(p.Cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}

	var cur pageCursor
	if err := json.Unmarshal(raw, &cur); err != nil || cur.After == "" {
		return "", ErrInvalidCursor
	}

	return cur.After, nil
}

// PaginatedResponse is one page of a key-ordered listing.
type PaginatedResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}

type pageCursor struct {
	After string `json:"after"`
}

// Paginate returns the page of items whose key sorts after the cursor key.
// items must already be sorted by key.
func Paginate[T any](items []T, key func(T) string, after string, size int) *PaginatedResponse[T] {
	page := &PaginatedResponse[T]{Items: make([]T, 0, min(size, len(items)))}

	for _, item := range items {
		if after != "" && key(item) <= after {
			continue
		}

		if len(page.Items) == size {
			page.HasMore = true
			break
		}

		page.Items = append(page.Items, item)
	}

	if page.HasMore {
		raw, _ := json.Marshal(pageCursor{After: key(page.Items[len(page.Items)-1])})
		page.NextCursor = base64.RawURLEncoding.EncodeToString(raw)
	}

	return page
}
