package credential

import (
	"context"
	"testing"

	"github.com/creativeprojects/courier/cfg"
	"github.com/creativeprojects/courier/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordProvider(t *testing.T) {
	store := NewStore(nil, lib.NewTestLogger(t, "store"))
	store.Register("work", cfg.Credential{Secret: "password"}, cfg.VaultStrict)
	provider := NewPasswordProvider(store, "work", "me@example.com")

	auth, err := provider.Auth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MechanismPassword, auth.Mechanism)
	assert.Equal(t, "me@example.com", auth.Username)
	assert.Equal(t, "password", auth.Secret)
	assert.NotContains(t, auth.String(), "password")

	provider.Invalidate()
}

func TestSASLClients(t *testing.T) {
	fixtures := []struct {
		mechanism Mechanism
		expected  string
	}{
		{MechanismPassword, "PLAIN"},
		{MechanismXOAuth2, "XOAUTH2"},
		{MechanismOAuthBearer, "OAUTHBEARER"},
	}
	for _, fixture := range fixtures {
		t.Run(fixture.expected, func(t *testing.T) {
			auth := Auth{Mechanism: fixture.mechanism, Username: "me@example.com", Secret: "token"}
			mech, ir, err := auth.SASL().Start()
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, mech)
			assert.Contains(t, string(ir), "token")
		})
	}
}

func TestXOAuth2InitialResponse(t *testing.T) {
	_, ir, err := NewXOAuth2Client("me@example.com", "token").Start()
	require.NoError(t, err)
	assert.Equal(t, "user=me@example.com\x01auth=Bearer token\x01\x01", string(ir))

	response, err := NewXOAuth2Client("me@example.com", "token").Next([]byte(`{"status":"401"}`))
	require.NoError(t, err)
	assert.Empty(t, response)
}
