package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate.RegisterStructValidation(validateCache, Cache{})
	})
	return validate
}

func validateCache(sl validator.StructLevel) {
	cache := sl.Current().Interface().(Cache)
	switch cache.Backend {
	case "redis":
		if cache.Redis.Address == "" {
			sl.ReportError(cache.Redis.Address, "address", "Address", "required_for_backend", "redis")
		}
	case "mysql":
		if cache.MySQL.DSN == "" {
			sl.ReportError(cache.MySQL.DSN, "dsn", "DSN", "required_for_backend", "mysql")
		}
	}
}

// Validate 校验三组配置，错误信息使用 YAML 字段路径。
func (s Set) Validate() error {
	v := validatorInstance()
	var errs []error
	for _, g := range s.groups() {
		if err := v.Struct(g.target); err != nil {
			errs = append(errs, describe(g.file, err))
		}
	}
	return errors.Join(errs...)
}

func describe(file string, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%s: %w", file, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		path := fe.Namespace()
		if idx := strings.IndexByte(path, '.'); idx >= 0 {
			path = path[idx+1:]
		}
		constraint := fe.Tag()
		if fe.Param() != "" {
			constraint += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s 不满足 %s (当前值 %v)", path, constraint, fe.Value()))
	}
	return fmt.Errorf("%s 配置无效: %s", file, strings.Join(parts, "; "))
}
