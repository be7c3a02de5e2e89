package httpapi

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"mediaLending/models"
)

var registerOnce sync.Once

// registerValidators installs the domain tags on gin's validator and makes
// error messages use JSON field names.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form", "uri"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
		_ = v.RegisterValidation("resourcetype", func(fl validator.FieldLevel) bool {
			return models.ResourceType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("borrowingstatus", func(fl validator.FieldLevel) bool {
			return models.BorrowingStatus(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("contactstatus", func(fl validator.FieldLevel) bool {
			return models.ContactStatus(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return models.Role(fl.Field().String()).Valid()
		})
	})
}
