package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/focusroom/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("kind", func(fl validator.FieldLevel) bool {
		return model.Kind(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Result is the outcome of validating a raw item.
type Result struct {
	Valid    bool     `json:"valid"`
	Item     *Item    `json:"item"`
	Problems []string `json:"problems,omitempty"`
}

// Validate accepts raw as-is when it satisfies the strict schema. Otherwise it
// reports the problems and returns a repaired item. The item in the result is
// always strictly valid.
func Validate(raw map[string]any) Result {
	item, problems := parseStrict(raw)
	if len(problems) == 0 {
		return Result{Valid: true, Item: item}
	}
	return Result{Valid: false, Item: Repair(raw), Problems: problems}
}

// Normalize returns the strictly valid form of raw.
func Normalize(raw map[string]any) *Item {
	return Validate(raw).Item
}

// ValidateJSON validates an arbitrary JSON document. Documents that are not
// objects are wrapped: a string becomes free-form content, anything else an
// empty item.
func ValidateJSON(data []byte) Result {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{Item: Repair(nil), Problems: []string{"decode: " + err.Error()}}
	}
	switch v := doc.(type) {
	case map[string]any:
		return Validate(v)
	case string:
		return Validate(map[string]any{"content": v})
	}
	return Validate(map[string]any{})
}

// ValidateItem checks an already typed item against the strict schema.
func ValidateItem(it *Item) error {
	if it == nil {
		return errors.New("content: nil item")
	}
	if err := validate.Struct(it); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if it.Content.Kind != it.Kind {
		return fmt.Errorf("content: block kind %q does not match item kind %q", it.Content.Kind, it.Kind)
	}
	if it.Content.Data.Kind() != it.Kind {
		return fmt.Errorf("content: %s item carries %s data", it.Kind, it.Content.Data.Kind())
	}
	if !it.Content.Data.Renderable() {
		return fmt.Errorf("content: %s data is not renderable", it.Kind)
	}
	return nil
}

func parseStrict(raw map[string]any) (*Item, []string) {
	if raw == nil {
		return nil, []string{"empty item"}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, []string{"encode: " + err.Error()}
	}
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, []string{"decode: " + err.Error()}
	}
	if err := ValidateItem(&it); err != nil {
		return nil, describe(err)
	}
	return &it, nil
}

func describe(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return out
}
