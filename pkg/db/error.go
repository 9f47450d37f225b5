package db

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFoundErr reports whether err is gorm's empty-result error, so callers
// can map it to their own sentinel or a nil row.
func IsNotFoundErr(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
