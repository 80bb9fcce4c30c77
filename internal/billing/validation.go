package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/currency"

	"github.com/odyssey-erp/odyssey-billing/internal/billing/pricing"
	"github.com/odyssey-erp/odyssey-billing/internal/shared"
)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		_, err := currency.ParseISO(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		d := sl.Current().Interface().(pricing.Discount)
		if err := d.Validate(); err != nil {
			sl.ReportError(d.Value, "Value", "value", "discount", err.Error())
		}
	}, pricing.Discount{})
	return v
}

// validate runs struct tags and maps failures onto shared.ErrValidation.
func (s *Service) validate(req any) error {
	err := s.validator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Tag() == "discount" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
}

func normalizeCancelReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", ErrCancelReasonRequired
	}
	if len([]rune(reason)) > maxCancelReason {
		return "", ErrCancelReasonTooLong
	}
	return reason, nil
}

func normalizeCurrency(code, fallback string) (string, error) {
	if code == "" {
		code = fallback
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("%w: currency %q", shared.ErrValidation, code)
	}
	return unit.String(), nil
}
