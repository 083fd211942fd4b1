package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

var supportedLanguages = map[string]bool{"es": true, "en": true}

// NormalizeSettings checks the language tag and distance unit and reduces the
// language to its base form ("es-MX" becomes "es").
func NormalizeSettings(in UserSettings) (UserSettings, error) {
	tag, err := language.Parse(strings.TrimSpace(in.Language))
	if err != nil {
		return UserSettings{}, fmt.Errorf("%w: language %q: %w", ErrInvalidSettings, in.Language, err)
	}
	base, confidence := tag.Base()
	if confidence != language.Exact || !supportedLanguages[base.String()] {
		return UserSettings{}, fmt.Errorf("%w: unsupported language %q", ErrInvalidSettings, in.Language)
	}

	unit := DistanceUnit(strings.ToLower(strings.TrimSpace(string(in.DistanceUnit))))
	switch unit {
	case DistanceUnitKilometers, DistanceUnitMiles:
	default:
		return UserSettings{}, fmt.Errorf("%w: distance unit %q", ErrInvalidSettings, in.DistanceUnit)
	}
	return UserSettings{Language: base.String(), DistanceUnit: unit}, nil
}
