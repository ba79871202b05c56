package orch

import (
	"errors"
	"reflect"
	"strings"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// SendRequest is a chat send as it reaches the orchestrator.
type SendRequest struct {
	Key  domain.ConversationKey `json:"booking_code" validate:"notblank,max=128"`
	Role domain.Role            `json:"sender" validate:"oneof=driver passenger"`
	Body string                 `json:"message" validate:"notblank"`
}

// CallRequest is a call action as it reaches the orchestrator.
type CallRequest struct {
	Key      domain.ConversationKey `json:"booking_code" validate:"notblank,max=128"`
	Role     domain.Role            `json:"caller_type" validate:"oneof=driver passenger"`
	Action   domain.CallAction      `json:"action" validate:"min=1,max=4"`
	Kind     domain.CallKind        `json:"call_type" validate:"omitempty,oneof=voice video"`
	Duration *int                   `json:"duration" validate:"omitempty,min=0"`
}

// SignalRequest is a WebRTC payload one side wants relayed to the other.
type SignalRequest struct {
	Key     domain.ConversationKey `json:"booking_code" validate:"notblank,max=128"`
	Role    domain.Role            `json:"role" validate:"oneof=driver passenger"`
	Signal  string                 `json:"signal" validate:"oneof=offer answer candidate"`
	Payload []byte                 `json:"payload" validate:"required"`
}

// check runs struct validation and turns the first failure into an InvalidArgumentError.
func check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.InvalidArgument(fe.Field(), reason(fe))
	}
	return domain.InvalidArgument("request", err.Error())
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "empty"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "too long"
	case "min":
		return "out of range"
	}
	return "failed " + fe.Tag()
}
