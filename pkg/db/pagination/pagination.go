package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10" validate:"gte=1,lte=250"`
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken     string `json:"next_page_token"`
	PreviousPageToken string `json:"previous_page_token"`
	HasMore           bool   `json:"has_more"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 250
)

// Size clamps a requested page size.
func Size(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Page trims a page fetched with one extra row and derives its PageInfo.
func Page[T any](items []*T, limit int, extractCursor func(*T) string) ([]*T, PageInfo) {
	if len(items) == 0 || limit <= 0 {
		return items, PageInfo{}
	}

	info := PageInfo{}
	if len(items) > limit {
		info.HasMore = true
		items = items[:limit]
	}
	if info.HasMore {
		info.NextPageToken = extractCursor(items[len(items)-1])
	}
	return items, info
}
