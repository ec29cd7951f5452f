package wallet

import (
	"errors"
	"sync"

	"minibtc/core"
)

var errMismatchedAddress = errors.New("wallet: public key does not derive the claimed address")

// addressBook maps addresses to the encoded public key behind them. It
// exists because a CHECKSIG lock names a public key, not an address — to
// pay someone, a wallet first needs to have learned their key, typically
// by the recipient sharing it out of band (§4.6 "register"). It is kept
// in memory only; nothing about it is persisted (§6 "Persisted state").
type addressBook struct {
	mu      sync.Mutex
	entries map[string]string // address -> encoded public key
}

func newAddressBook() *addressBook {
	return &addressBook{entries: make(map[string]string)}
}

// Register records that address is controlled by encodedPubKey, verifying
// the claim by re-deriving the address from the key rather than trusting
// the caller's pairing blindly.
func (b *addressBook) Register(address, encodedPubKey string) error {
	derived, err := core.AddressFromEncodedPublicKey(encodedPubKey)
	if err != nil {
		return err
	}
	if derived != address {
		return errMismatchedAddress
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[address] = encodedPubKey
	return nil
}

// Lookup returns the encoded public key registered for address, if any.
func (b *addressBook) Lookup(address string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, ok := b.entries[address]
	return key, ok
}

// AddressBook returns w's address book, creating it on first use.
func (w *Wallet) AddressBook() *addressBook {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.book == nil {
		w.book = newAddressBook()
	}
	return w.book
}
