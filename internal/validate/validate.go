package validate

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"atttracker/internal/apperr"
)

var (
	v          *validator.Validate
	translator ut.Translator

	hhmmRegex         = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	academicYearRegex = regexp.MustCompile(`^\d{4}-\d{4}$`)
	colorRegex        = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

	weekdays = map[string]bool{
		"Monday": true, "Tuesday": true, "Wednesday": true, "Thursday": true,
		"Friday": true, "Saturday": true, "Sunday": true,
	}
)

func init() {
	v = validator.New()
	english := en.New()
	translator, _ = ut.New(english, english).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	register("hhmm", "{0} must be a 24-hour HH:MM time", func(fl validator.FieldLevel) bool {
		return IsHHMM(fl.Field().String())
	})
	register("academicyear", "{0} must have the format YYYY-YYYY", func(fl validator.FieldLevel) bool {
		return academicYearRegex.MatchString(fl.Field().String())
	})
	register("upper", "{0} must be uppercase", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == strings.ToUpper(s)
	})
	register("weekday", "{0} must be a day name from Monday to Sunday", func(fl validator.FieldLevel) bool {
		return weekdays[fl.Field().String()]
	})
	register("hexcolor6", "{0} must be a #RRGGBB color", func(fl validator.FieldLevel) bool {
		return colorRegex.MatchString(fl.Field().String())
	})
	overrideTranslation("required", "{0} is required")
}

func register(tag, text string, fn validator.Func) {
	_ = v.RegisterValidation(tag, fn)
	overrideTranslation(tag, text)
}

func overrideTranslation(tag, text string) {
	_ = v.RegisterTranslation(tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// IsHHMM reports whether s is a zero-padded 24-hour "HH:MM" time.
func IsHHMM(s string) bool { return hhmmRegex.MatchString(s) }

// IsWeekday reports whether s is a capitalised English day name.
func IsWeekday(s string) bool { return weekdays[s] }

// Struct validates s and converts failures into an *apperr.ValidationError.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	return FromValidator(verrs)
}

// FromValidator converts validator errors, keyed by JSON path without the root struct.
func FromValidator(verrs validator.ValidationErrors) *apperr.ValidationError {
	out := &apperr.ValidationError{}
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out.Fields = append(out.Fields, apperr.FieldError{Field: field, Message: fe.Translate(translator)})
	}
	return out
}
