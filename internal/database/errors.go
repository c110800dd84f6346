package database

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/BaSui01/memflow/types"
)

// =============================================================================
// 🔀 错误翻译
// =============================================================================

// translateError 把 GORM / 驱动错误翻译为统一的 types.Error。
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return types.NewNotFoundError("memory not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return types.NewDuplicateError("content hash already stored")
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, op+" deadline exceeded").WithCause(err)
	}

	msg := strings.ToLower(err.Error())

	// 驱动未实现 TranslateError 时的兜底识别。
	if strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry") {
		return types.NewDuplicateError("content hash already stored")
	}

	if isConnectivityError(msg) {
		return types.NewStorageError(op+" failed, durable store unreachable", err)
	}

	return types.NewStorageError(op+" failed", err)
}

func isConnectivityError(msg string) bool {
	for _, needle := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"no such host",
		"i/o timeout",
		"database is closed",
		"sql: database is closed",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
