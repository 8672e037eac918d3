package config

import (
	"errors"
	"fmt"
)

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// IsFieldError 判断错误是否为字段级校验失败，CLI 据此返回配置错误码。
func IsFieldError(err error) bool {
	var fieldErr FieldError
	return errors.As(err, &fieldErr)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// hubField 用于拼接 Hub 级字段路径，方便输出 Hub[xxx].Field 形式。
func hubField(name, field string) string {
	if name == "" {
		return fmt.Sprintf("Hub[].%s", field)
	}
	return fmt.Sprintf("Hub[%s].%s", name, field)
}
