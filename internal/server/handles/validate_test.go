package handles

import (
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/creditkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		candidate  string
		want       string
		wantReason Reason
	}{
		{name: "min length", candidate: "abc", want: "abc"},
		{name: "max length", candidate: strings.Repeat("a", 20), want: strings.Repeat("a", 20)},
		{name: "lowercased", candidate: "Ada_Lovelace99", want: "ada_lovelace99"},
		{name: "empty", candidate: "", wantReason: TooShort},
		{name: "length 2", candidate: "ab", wantReason: TooShort},
		{name: "length 21", candidate: strings.Repeat("a", 21), wantReason: TooLong},
		{name: "dash", candidate: "ada-l", wantReason: InvalidCharacters},
		{name: "space", candidate: "ada l", wantReason: InvalidCharacters},
		{name: "non ascii", candidate: "adé", wantReason: InvalidCharacters},
		{name: "too long wins over charset", candidate: strings.Repeat("-", 21), wantReason: TooLong},
		{name: "too short wins over charset", candidate: "-", wantReason: TooShort},
		{name: "reserved", candidate: "admin", wantReason: Reserved},
		{name: "reserved mixed case", candidate: "Admin", wantReason: Reserved},
		{name: "reserved short word", candidate: "API", wantReason: Reserved},
		{name: "reserved long word", candidate: "SUPPORT", wantReason: Reserved},
		{name: "reserved prefix is fine", candidate: "admin_2", want: "admin_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.candidate)
			if tt.wantReason == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)

			var v *Violation
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.wantReason, v.Reason)
			assert.ErrorIs(t, err, reasonErrors[tt.wantReason])
			assert.NotEmpty(t, v.Message)
			assert.Empty(t, got)
		})
	}
}

func TestValidate_IsDeterministic(t *testing.T) {
	for _, c := range []string{"ab", "Admin", "ok_name", "bad name", strings.Repeat("z", 21)} {
		first, firstErr := Validate(c)
		for i := 0; i < 5; i++ {
			got, err := Validate(c)
			assert.Equal(t, first, got)
			assert.Equal(t, firstErr, err)
		}
	}
}

func TestValidate_ReservedSentinel(t *testing.T) {
	_, err := Validate("Admin")
	assert.ErrorIs(t, err, ErrReserved)
	assert.NotErrorIs(t, err, ErrTooShort)
}
