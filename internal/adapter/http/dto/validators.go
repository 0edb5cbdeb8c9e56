package dto

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxBatchLimit caps the number of rows a single operator-triggered batch
// may claim.
const MaxBatchLimit = 1000

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("batch_limit", validateBatchLimit)
	}
}

// validateBatchLimit accepts 0 (use the configured default) or 1..MaxBatchLimit.
func validateBatchLimit(fl validator.FieldLevel) bool {
	n := fl.Field().Int()
	return n >= 0 && n <= MaxBatchLimit
}
