package api

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"tripledger/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names so field errors match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateStruct validates a struct and returns the failures as a
// *domain.ValidationError, or nil.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &domain.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), getErrorMessage(fe))
	}
	return verr
}

// getErrorMessage returns a user-friendly error message
func getErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + err.Param() + " characters"
	case "max":
		return "must be at most " + err.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + err.Param()
	case "lte":
		return "must be less than or equal to " + err.Param()
	case "gt":
		return "must be greater than " + err.Param()
	case "oneof":
		return "must be one of " + strings.ReplaceAll(err.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

// BindJSON decodes and validates the request body, writing a 400 on failure.
func BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Details: err.Error()})
		return false
	}
	if err := ValidateStruct(dst); err != nil {
		WriteError(c, err)
		return false
	}
	return true
}

// ParamID reads a positive integer path parameter, writing a 400 on failure.
func ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

// DateLayout is the calendar date format accepted in bodies and queries.
const DateLayout = "2006-01-02"

// QueryParams reads optional typed query parameters and collects every
// malformed one.
type QueryParams struct {
	c    *gin.Context
	verr domain.ValidationError
}

func Query(c *gin.Context) *QueryParams {
	return &QueryParams{c: c}
}

func (q *QueryParams) Int64(name string) int64 {
	raw := q.c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		q.verr.Add(name, "must be a non-negative integer")
		return 0
	}
	return v
}

func (q *QueryParams) Int(name string) int {
	return int(q.Int64(name))
}

func (q *QueryParams) Date(name string) time.Time {
	raw := q.c.Query(name)
	if raw == "" {
		return time.Time{}
	}
	v, err := time.Parse(DateLayout, raw)
	if err != nil {
		q.verr.Add(name, "must be a date formatted as YYYY-MM-DD")
		return time.Time{}
	}
	return v
}

func (q *QueryParams) Bool(name string) bool {
	v, _ := strconv.ParseBool(q.c.Query(name))
	return v
}

// Err returns the collected failures as a *domain.ValidationError, or nil.
func (q *QueryParams) Err() error {
	return q.verr.OrNil()
}
