package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/example/sailchat/internal/datamodels/chat"
)

// translate 把驱动/GORM 错误映射为聊天领域错误，已是领域错误的原样返回
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chat.ErrNotFound),
		errors.Is(err, chat.ErrDuplicateEntity),
		errors.Is(err, chat.ErrTransientStore):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return chat.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return fmt.Errorf("%w: %v", chat.ErrDuplicateEntity, err)
	case isLockConflict(err):
		return fmt.Errorf("%w: %v", chat.ErrLockConflict, err)
	case isTransient(err):
		return fmt.Errorf("%w: %v", chat.ErrTransientStore, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// isLockConflict MySQL 1213 / PostgreSQL 40P01、40001
func isLockConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Deadlock found") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "could not serialize access")
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Lock wait timeout") ||
		strings.Contains(msg, "database is locked")
}
