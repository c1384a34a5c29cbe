package model

import (
	"fmt"
	"regexp"
)

var locationPattern = regexp.MustCompile(`^\[[0-9]+\.[0-9]+,[0-9]+\.[0-9]+\]$`)

// InvalidLocationError reports a location that does not match the
// "[<float>,<float>]" grammar.
type InvalidLocationError struct {
	Location string
}

func (e *InvalidLocationError) Error() string {
	return fmt.Sprintf("Invalid location field: %s", e.Location)
}

// ValidateLocation checks that location is two non-negative decimals inside
// square brackets, separated by a comma and without whitespace. Both numbers
// need an integer part, a decimal point and a fractional part.
func ValidateLocation(location string) error {
	if !locationPattern.MatchString(location) {
		return &InvalidLocationError{Location: location}
	}
	return nil
}
