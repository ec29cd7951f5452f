package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	payload := map[string]interface{}{"amount": 5}
	sig, err := Sign(priv, payload)
	require.NoError(t, err)

	require.True(t, Verify(&priv.PublicKey, sig, payload))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv1, err := GenerateKey()
	require.NoError(t, err)
	priv2, err := GenerateKey()
	require.NoError(t, err)

	payload := map[string]interface{}{"amount": 5}
	sig, err := Sign(priv1, payload)
	require.NoError(t, err)

	require.False(t, Verify(&priv2.PublicKey, sig, payload))
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	sig, err := Sign(priv, map[string]interface{}{"amount": 5})
	require.NoError(t, err)

	require.False(t, Verify(&priv.PublicKey, sig, map[string]interface{}{"amount": 6}))
}

func TestVerifyNeverPanicsOnMalformedSignature(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	require.False(t, Verify(&priv.PublicKey, "", "x"))
	require.False(t, Verify(&priv.PublicKey, "not-hex", "x"))
	require.False(t, Verify(&priv.PublicKey, "abc", "x")) // odd length
}

func TestPrivateKeyMarshalRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	der, err := MarshalPrivateKey(priv)
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(der)
	require.NoError(t, err)
	require.Equal(t, priv.X, parsed.X)
	require.Equal(t, priv.P, parsed.P)
	require.Equal(t, priv.Q, parsed.Q)
	require.Equal(t, priv.G, parsed.G)
	require.Equal(t, priv.Y, parsed.Y)
}

func TestPublicKeyEncodeDecodeRoundTrip(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	encoded, err := EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	decoded, err := DecodePublicKey(encoded)
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey.Y, decoded.Y)
}

func TestAddressFromEncodedPublicKeyMatchesAddress(t *testing.T) {
	priv, err := GenerateKey()
	require.NoError(t, err)

	want, err := Address(&priv.PublicKey)
	require.NoError(t, err)

	encoded, err := EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	got, err := AddressFromEncodedPublicKey(encoded)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
