package fiscal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

var (
	authorizationPattern = regexp.MustCompile(`^[0-9A-F]{6}(-[0-9A-F]{6}){4}-[0-9A-F]{2}$`)
	prefixPattern        = regexp.MustCompile(`^\d{3}-\d{3}-\d{2}-$`)
)

// NormalizeAuthorizationCode trims and upper-cases a CAI code.
func NormalizeAuthorizationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateBounds(code, prefix string, in UpdateRangeInput) error {
	if !authorizationPattern.MatchString(code) {
		return fmt.Errorf("%w: authorization code %q must be 5 groups of 6 hex digits and one group of 2", shared.ErrValidation, code)
	}
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: prefix %q must match DDD-DDD-DD-", shared.ErrValidation, prefix)
	}
	if in.Initial < 1 {
		return fmt.Errorf("%w: initial correlative must be at least 1", shared.ErrValidation)
	}
	if in.Final < in.Initial {
		return fmt.Errorf("%w: final correlative must not be lower than initial", shared.ErrValidation)
	}
	if in.ValidFrom.IsZero() || in.ValidTo.IsZero() {
		return fmt.Errorf("%w: validity window required", shared.ErrValidation)
	}
	if in.ValidTo.Before(in.ValidFrom) {
		return fmt.Errorf("%w: valid_to precedes valid_from", shared.ErrValidation)
	}
	return nil
}

// buildRange validates input and returns a fresh range with its cursor at Initial.
func buildRange(in CreateRangeInput) (Range, error) {
	code := NormalizeAuthorizationCode(in.AuthorizationCode)
	prefix := strings.TrimSpace(in.Prefix)
	bounds := UpdateRangeInput{ValidFrom: in.ValidFrom, ValidTo: in.ValidTo, Initial: in.Initial, Final: in.Final}
	if err := validateBounds(code, prefix, bounds); err != nil {
		return Range{}, err
	}
	return Range{
		AuthorizationCode: code,
		Prefix:            prefix,
		ValidFrom:         in.ValidFrom,
		ValidTo:           in.ValidTo,
		Initial:           in.Initial,
		Final:             in.Final,
		Current:           in.Initial,
		Pending:           pendingFor(in.Final, in.Initial),
		Active:            in.Active,
	}, nil
}

// applyUpdate returns existing with in applied. Once correlatives were issued
// only Final may grow and the validity window may change.
func applyUpdate(existing Range, in UpdateRangeInput) (Range, error) {
	code := NormalizeAuthorizationCode(in.AuthorizationCode)
	prefix := strings.TrimSpace(in.Prefix)
	if err := validateBounds(code, prefix, in); err != nil {
		return Range{}, err
	}
	next := existing
	next.AuthorizationCode = code
	next.Prefix = prefix
	next.ValidFrom = in.ValidFrom
	next.ValidTo = in.ValidTo
	if existing.Consumed() {
		switch {
		case in.Initial != existing.Initial:
			return Range{}, fmt.Errorf("%w: initial correlative is locked", ErrRangeConsumed)
		case prefix != existing.Prefix:
			return Range{}, fmt.Errorf("%w: prefix is locked", ErrRangeConsumed)
		case code != existing.AuthorizationCode:
			return Range{}, fmt.Errorf("%w: authorization code is locked", ErrRangeConsumed)
		case in.Final < existing.Final:
			return Range{}, fmt.Errorf("%w: final correlative can only be extended", ErrRangeConsumed)
		}
		next.Final = in.Final
		next.Pending = pendingFor(next.Final, next.Current)
		return next, nil
	}
	next.Initial = in.Initial
	next.Final = in.Final
	next.Current = in.Initial
	next.Pending = pendingFor(in.Final, in.Initial)
	return next, nil
}
