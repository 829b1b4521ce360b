package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct validation tags plus
// the cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if ok := asValidationErrors(err, &invalid); ok {
			messages := make([]string, 0, len(invalid))
			for _, fieldErr := range invalid {
				messages = append(messages, describeFieldError(fieldErr))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
		}
		return err
	}

	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey == "" {
		return fmt.Errorf("invalid configuration: s3.secret_access_key is required when s3.access_key_id is set")
	}
	if !cfg.Workload.Upload && cfg.Workload.Download {
		return fmt.Errorf("invalid configuration: workload.download requires workload.upload, the download phase reads back uploaded keys")
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// describeFieldError renders one validation failure in config-file terms.
func describeFieldError(fieldErr validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(fieldErr.Namespace(), "Config."))
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_without":
		return fmt.Sprintf("%s is required unless %s is set", field, strings.ToLower(fieldErr.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fieldErr.Param())
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fieldErr.Tag(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fieldErr.Tag())
	}
}
