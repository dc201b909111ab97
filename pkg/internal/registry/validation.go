package registry

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"git.solsynth.dev/hypernet/chronicle/pkg/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// bundle carries what every variant bundle shares.
type bundle struct {
	clock Clock
	rules *validator.Validate
}

func newBundle(clock Clock) bundle {
	rules := validator.New()
	rules.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	rules.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			out, _ := val.Float64()
			return out
		}
		return nil
	}, decimal.Decimal{})
	if err := registerFutureRule(rules, futureRule, clock); err != nil {
		panic(fmt.Sprintf("registry: unable to register %q rule: %v", futureRule, err))
	}

	return bundle{clock: clock, rules: rules}
}

const futureRule = "future"

// registerFutureRule accepts times after the clock, unset times pass.
func registerFutureRule(rules *validator.Validate, tag string, clock Clock) error {
	return rules.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		val, ok := fl.Field().Interface().(time.Time)
		return !ok || val.After(clock())
	})
}

// check runs the struct rules, declaration order decides which violation
// is reported. Rules are always anonymous structs so the namespace carries
// no type name.
func (b bundle) check(rules any) error {
	err := b.rules.Struct(rules)
	if err == nil {
		return nil
	}
	var violations validator.ValidationErrors
	if errors.As(err, &violations) && len(violations) > 0 {
		return violationOf(violations[0])
	}
	return err
}

func violationOf(fe validator.FieldError) *models.ValidationFailed {
	field := fe.Namespace()
	rule := fe.Tag()
	if len(fe.Param()) > 0 {
		rule += "=" + fe.Param()
	}
	return &models.ValidationFailed{Field: field, Rule: rule}
}

// payloadOf asserts the draft payload type. A draft without payload gets the
// default one, a payload of another variant is reported on the payload field.
func payloadOf[T models.Payload](draft models.Draft, fallback func() models.Payload) (T, error) {
	var zero T
	payload := draft.Payload
	if payload == nil {
		payload = fallback()
	}
	out, ok := payload.(T)
	if !ok {
		return zero, &models.ValidationFailed{Field: "payload", Rule: "variant=" + draft.Variant.String()}
	}
	return out, nil
}

// preparedPayload clones the draft payload so folding pre-step results never
// touches the live draft.
func preparedPayload[T models.Payload](draft models.Draft, fallback func() models.Payload) (T, error) {
	var zero T
	payload, err := payloadOf[T](draft, fallback)
	if err != nil {
		return zero, err
	}
	cloned, err := models.ClonePayload(payload)
	if err != nil {
		return zero, err
	}
	return cloned.(T), nil
}

func itemPayload[T models.Payload](item models.ContentItem) (T, error) {
	var zero T
	payload, err := models.CheckSchema(item)
	if err != nil {
		return zero, err
	}
	out, ok := payload.(T)
	if !ok {
		return zero, &models.SchemaMismatchError{
			ItemID:    item.ID,
			Variant:   item.Variant,
			Populated: []models.Variant{payload.Variant()},
		}
	}
	return out, nil
}

func foldInto[T models.Payload](apply func(payload T, resourceID string)) func(models.Payload, string) error {
	return func(payload models.Payload, resourceID string) error {
		out, ok := payload.(T)
		if !ok {
			return &models.SchemaMismatchError{Populated: []models.Variant{payload.Variant()}}
		}
		apply(out, resourceID)
		return nil
	}
}
