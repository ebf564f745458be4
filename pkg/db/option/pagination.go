package option

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/commissionrail/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(stmt *gorm.DB) *gorm.DB
}

type paginationOption struct {
	page pagination.Pagination
}

// ApplyPagination applies a keyset cursor on id and fetches one extra row so
// callers can tell whether another page exists. A token that does not decode
// to an id fails the query with pagination.ErrInvalidPageToken.
func ApplyPagination(page pagination.Pagination) QueryOption {
	return paginationOption{page: page}
}

func (o paginationOption) Apply(stmt *gorm.DB) *gorm.DB {
	size := pagination.Size(o.page.PageSize)

	if o.page.PageToken != "" {
		id, err := cursorID(o.page.PageToken)
		if err != nil {
			_ = stmt.AddError(err)
			return stmt
		}
		stmt = stmt.Where("id < ?", id)
	}

	return stmt.Limit(size + 1)
}

func cursorID(token string) (snowflake.ID, error) {
	cursor, err := pagination.DecodeCursor(token)
	if err != nil || cursor.ID == "" {
		return 0, pagination.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(cursor.ID)
	if err != nil {
		return 0, pagination.ErrInvalidPageToken
	}
	return id, nil
}
