package fiscal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fiscalpos/fiscalpos/internal/shared"
)

func validInput() CreateRangeInput {
	return CreateRangeInput{
		AuthorizationCode: " 35e1c2-5bb6f4-9e4e8a-a2a1d8-bf1a0c-7d ",
		Prefix:            "000-001-01-",
		ValidFrom:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ValidTo:           time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Initial:           1,
		Final:             500,
	}
}

func TestBuildRangeNormalisesAndInitialisesCursor(t *testing.T) {
	rng, err := buildRange(validInput())
	require.NoError(t, err)
	require.Equal(t, "35E1C2-5BB6F4-9E4E8A-A2A1D8-BF1A0C-7D", rng.AuthorizationCode)
	require.Equal(t, int64(1), rng.Current)
	require.Equal(t, int64(500), rng.Pending)
}

func TestBuildRangeRejectsMalformedInput(t *testing.T) {
	cases := map[string]func(*CreateRangeInput){
		"short code":      func(in *CreateRangeInput) { in.AuthorizationCode = "35E1C2-5BB6F4-9E4E8A-A2A1D8-BF1A0C" },
		"non hex":         func(in *CreateRangeInput) { in.AuthorizationCode = "35E1CZ-5BB6F4-9E4E8A-A2A1D8-BF1A0C-7D" },
		"prefix no dash":  func(in *CreateRangeInput) { in.Prefix = "000-001-01" },
		"prefix letters":  func(in *CreateRangeInput) { in.Prefix = "A00-001-01-" },
		"zero initial":    func(in *CreateRangeInput) { in.Initial = 0 },
		"final < initial": func(in *CreateRangeInput) { in.Final = 0 },
		"window reversed": func(in *CreateRangeInput) { in.ValidTo = in.ValidFrom.AddDate(0, 0, -1) },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		_, err := buildRange(in)
		require.ErrorIs(t, err, shared.ErrValidation, name)
	}
}

func updateFrom(rng Range) UpdateRangeInput {
	return UpdateRangeInput{
		AuthorizationCode: rng.AuthorizationCode,
		Prefix:            rng.Prefix,
		ValidFrom:         rng.ValidFrom,
		ValidTo:           rng.ValidTo,
		Initial:           rng.Initial,
		Final:             rng.Final,
	}
}

func TestApplyUpdateBeforeConsumptionResetsCursor(t *testing.T) {
	rng, err := buildRange(validInput())
	require.NoError(t, err)
	in := updateFrom(rng)
	in.Initial, in.Final = 1000, 1999

	next, err := applyUpdate(rng, in)
	require.NoError(t, err)
	require.Equal(t, int64(1000), next.Current)
	require.Equal(t, int64(1000), next.Pending)
}

func TestApplyUpdateAfterConsumption(t *testing.T) {
	rng, err := buildRange(validInput())
	require.NoError(t, err)
	rng.Current = 11
	rng.Pending = pendingFor(rng.Final, rng.Current)

	extend := updateFrom(rng)
	extend.Final = 600
	next, err := applyUpdate(rng, extend)
	require.NoError(t, err)
	require.Equal(t, int64(11), next.Current)
	require.Equal(t, int64(590), next.Pending)

	locked := []func(*UpdateRangeInput){
		func(in *UpdateRangeInput) { in.Initial = 2 },
		func(in *UpdateRangeInput) { in.Prefix = "000-001-02-" },
		func(in *UpdateRangeInput) { in.AuthorizationCode = "AAAAAA-5BB6F4-9E4E8A-A2A1D8-BF1A0C-7D" },
		func(in *UpdateRangeInput) { in.Final = 499 },
	}
	for i, mutate := range locked {
		in := updateFrom(rng)
		mutate(&in)
		_, err := applyUpdate(rng, in)
		require.ErrorIs(t, err, ErrRangeConsumed, "case %d", i)
		require.ErrorIs(t, err, shared.ErrInvalidState)
	}

	window := updateFrom(rng)
	window.ValidTo = window.ValidTo.AddDate(1, 0, 0)
	_, err = applyUpdate(rng, window)
	require.NoError(t, err)
}

func TestRangeDaysToExpiry(t *testing.T) {
	rng := Range{ValidTo: time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)}
	now := time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)
	require.Equal(t, 5, rng.DaysToExpiry(now))
	require.False(t, rng.Expired(now))
	require.True(t, rng.Expired(time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)))
}
