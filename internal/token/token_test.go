package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOperator(t *testing.T) {
	tokenString, err := BuildJWTString("secret", "gascontrol", "gasero-1", time.Hour)
	require.NoError(t, err)

	operator, err := GetOperator(tokenString, "secret", "gascontrol")
	require.NoError(t, err)
	assert.Equal(t, "gasero-1", operator)

	// без проверки издателя
	operator, err = GetOperator(tokenString, "secret", "")
	require.NoError(t, err)
	assert.Equal(t, "gasero-1", operator)
}

func TestGetOperatorRejects(t *testing.T) {
	valid, err := BuildJWTString("secret", "gascontrol", "gasero-1", time.Hour)
	require.NoError(t, err)
	expired, err := BuildJWTString("secret", "gascontrol", "gasero-1", -time.Minute)
	require.NoError(t, err)
	noSubject, err := BuildJWTString("secret", "gascontrol", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
		issuer string
		err    error
	}{
		{"wrong secret", valid, "other", "", ErrInvalidToken},
		{"wrong issuer", valid, "secret", "someone-else", ErrInvalidToken},
		{"expired", expired, "secret", "", ErrInvalidToken},
		{"garbage", "not.a.token", "secret", "", ErrInvalidToken},
		{"no subject", noSubject, "secret", "", ErrNoSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GetOperator(tt.token, tt.secret, tt.issuer)
			require.ErrorIs(t, err, tt.err)
		})
	}
}
