package prompts

import (
	"fmt"
	"strings"
)

type Validator func(Input) error

func RequireNonEmpty(field string, get func(Input) string) Validator {
	return func(in Input) error {
		if get == nil {
			return fmt.Errorf("validator for %s: getter is nil", field)
		}
		if strings.TrimSpace(get(in)) == "" {
			return fmt.Errorf("%s required", field)
		}
		return nil
	}
}

func RequirePositive(field string, get func(Input) int) Validator {
	return func(in Input) error {
		if get == nil {
			return fmt.Errorf("validator for %s: getter is nil", field)
		}
		if get(in) <= 0 {
			return fmt.Errorf("%s must be > 0", field)
		}
		return nil
	}
}
