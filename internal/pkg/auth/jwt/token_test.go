package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	svc := NewService("test-secret")

	token, err := svc.IssueToken("u1", "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, username, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "alice", username)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewService("secret-a").IssueToken("u1", "alice")
	require.NoError(t, err)

	_, _, err = NewService("secret-b").VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret")

	_, _, err := svc.VerifyToken("not.a.token")
	assert.Error(t, err)

	_, _, err = svc.VerifyToken("")
	assert.Error(t, err)
}

func TestGenerateTokenSetsIssuer(t *testing.T) {
	token, err := GenerateToken(&Payload{ID: "u1", Username: "alice"}, "test-secret", UserIdentityExpiration)
	require.NoError(t, err)

	payload, err := ParseToken(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, TokenIssuer, payload.Issuer)
}
