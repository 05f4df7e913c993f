package message

import "strings"

// NonEmptyString accepts strings with at least one non-space character.
func NonEmptyString(value any) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) != ""
}

// NonNegativeInt accepts ints >= 0.
func NonNegativeInt(value any) bool {
	i, ok := value.(int)
	return ok && i >= 0
}

// PositiveInt accepts ints > 0.
func PositiveInt(value any) bool {
	i, ok := value.(int)
	return ok && i > 0
}

// NonNegativeFloat accepts float64 values >= 0.
func NonNegativeFloat(value any) bool {
	f, ok := value.(float64)
	return ok && f >= 0
}

// IntRange accepts ints in [lo, hi].
func IntRange(lo, hi int) Validator {
	return func(value any) bool {
		i, ok := value.(int)
		return ok && i >= lo && i <= hi
	}
}

// OneOf accepts strings equal to one of allowed.
func OneOf(allowed ...string) Validator {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(value any) bool {
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, found := set[s]
		return found
	}
}

// NonEmptyStrings accepts string lists where every element is non-empty.
// An empty list is accepted.
func NonEmptyStrings(value any) bool {
	list, ok := value.([]string)
	if !ok {
		return false
	}
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

// All accepts values that pass every validator.
func All(validators ...Validator) Validator {
	return func(value any) bool {
		for _, v := range validators {
			if v != nil && !v(value) {
				return false
			}
		}
		return true
	}
}
