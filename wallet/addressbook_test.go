package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"minibtc/core"
)

func TestAddressBookRegisterAndLookup(t *testing.T) {
	priv, err := core.GenerateKey()
	require.NoError(t, err)
	encoded, err := core.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)
	address, err := core.Address(&priv.PublicKey)
	require.NoError(t, err)

	book := newAddressBook()
	require.NoError(t, book.Register(address, encoded))

	got, ok := book.Lookup(address)
	require.True(t, ok)
	require.Equal(t, encoded, got)
}

func TestAddressBookRejectsMismatchedKey(t *testing.T) {
	priv, err := core.GenerateKey()
	require.NoError(t, err)
	encoded, err := core.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	book := newAddressBook()
	err = book.Register("some-other-address", encoded)
	require.ErrorIs(t, err, errMismatchedAddress)

	_, ok := book.Lookup("some-other-address")
	require.False(t, ok)
}

func TestAddressBookLookupMissing(t *testing.T) {
	book := newAddressBook()
	_, ok := book.Lookup("nobody")
	require.False(t, ok)
}

func TestWalletAddressBookLazilyInitializes(t *testing.T) {
	w := &Wallet{}
	first := w.AddressBook()
	second := w.AddressBook()
	require.Same(t, first, second)
}
