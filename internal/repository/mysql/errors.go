package mysql

import (
	"errors"

	"gorm.io/gorm"
)

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
