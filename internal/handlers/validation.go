package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	appErrors "github.com/blockvault/blockvault/pkg/errors"
	"github.com/blockvault/blockvault/pkg/validator"
)

// bindAndValidate binds the JSON body into req and runs struct validation,
// translating failures into client-facing bad request errors.
func bindAndValidate[T any](c *gin.Context, req *T) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return appErrors.NewBadRequest("Invalid request payload")
	}

	if err := validator.ValidateStruct(req); err != nil {
		var failures validator.ValidationErrors
		if errors.As(err, &failures) {
			return appErrors.NewBadRequest(failures.Error())
		}
		return appErrors.NewBadRequest("Invalid request payload")
	}

	return nil
}

// parseIntQuery reads an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func parseIntQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
