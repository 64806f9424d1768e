package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "expo-engine/backend/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError 单个字段的校验失败信息
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
}

// ValidateOptions 按 validate 标签校验参数结构体，失败时归类为 ErrConstraintViolation
func ValidateOptions(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", pkgerrors.ErrConstraintViolation, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Tag: fe.Tag()}.String())
	}
	return fmt.Errorf("%w: 参数校验失败 %s", pkgerrors.ErrConstraintViolation, strings.Join(fields, "; "))
}

func (e FieldError) String() string {
	return e.Field + "(" + e.Tag + ")"
}
