package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/himpower2025/eps-topik-mate/internal/models"
)

// Validator wraps go-playground/validator with domain rules.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	_ = validate.RegisterValidation("exammode", func(fl validator.FieldLevel) bool {
		switch models.ExamMode(fl.Field().String()) {
		case models.ModeFull, models.ModeReading, models.ModeListening:
			return true
		}
		return false
	})

	_ = validate.RegisterValidation("plantier", func(fl validator.FieldLevel) bool {
		switch models.PlanTier(fl.Field().String()) {
		case models.PlanFree, models.PlanOneMonth, models.PlanThreeMonth, models.PlanSixMonth:
			return true
		}
		return false
	})

	return &Validator{validate: validate}
}

// Validate validates a struct and flattens violations to one error.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !asValidationErrors(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s failed on %s", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
}

// ValidateQuestion applies the schema rules the generative output must
// satisfy before a question is accepted into a set.
func (v *Validator) ValidateQuestion(q *models.Question) error {
	if err := v.Validate(q); err != nil {
		return err
	}
	if !q.Valid() {
		return fmt.Errorf("question %s: correct answer index %d out of bounds for %d options",
			q.ID, q.CorrectAnswer, len(q.Options))
	}
	if len(q.OptionImagePrompts) > 0 && len(q.OptionImagePrompts) != len(q.Options) {
		return fmt.Errorf("question %s: %d option image prompts for %d options",
			q.ID, len(q.OptionImagePrompts), len(q.Options))
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
