package catalog

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Field names used as ValidationError keys.
const (
	FieldName      = "name"
	FieldPrice     = "price"
	FieldContent   = "content"
	FieldProductID = "product_id"
	FieldForm      = "form"
)

// User-facing validation messages.
const (
	MsgNameRequired    = "Product name is required"
	MsgPriceInvalid    = "Price must be a positive number"
	MsgContentRequired = "Review content is required"
	MsgProductRequired = "Product is required"
	MsgNoChanges       = "No fields changed"
)

var fieldMessages = map[string]string{
	FieldName:      MsgNameRequired,
	FieldPrice:     MsgPriceInvalid,
	FieldContent:   MsgContentRequired,
	FieldProductID: MsgProductRequired,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Decimals are validated in their exact string form.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("positive", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	return v
}

func fieldErrors(s any) (map[string]string, error) {
	fields := map[string]string{}
	err := validate.Struct(s)
	if err == nil {
		return fields, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = fe.Error()
		}
		fields[fe.Field()] = msg
	}
	return fields, nil
}

func asError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// Validate checks the create payload.
func (in CreateProductInput) Validate() error {
	fields, err := fieldErrors(in)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Name) == "" {
		fields[FieldName] = MsgNameRequired
	}
	return asError(fields)
}

// Validate checks the submitted fields of a partial update and rejects
// updates that change nothing.
func (in UpdateProductInput) Validate() error {
	if in.IsEmpty() {
		return NewValidationError(FieldForm, MsgNoChanges)
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return NewValidationError(FieldName, MsgNameRequired)
	}
	if in.Price != nil {
		if err := validate.Var(*in.Price, "positive"); err != nil {
			return NewValidationError(FieldPrice, MsgPriceInvalid)
		}
	}
	return nil
}

// Validate checks the review payload.
func (in CreateReviewInput) Validate() error {
	fields, err := fieldErrors(in)
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Content) == "" {
		fields[FieldContent] = MsgContentRequired
	}
	return asError(fields)
}
