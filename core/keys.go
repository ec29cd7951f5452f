package core

import (
	"crypto/dsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"math/big"

	"github.com/mr-tron/base58"
)

// KeySizeBits is the DSA modulus size minibtc generates and accepts, per §4.1.
const KeySizeBits = 1024

// derDSAPrivateKey is the minimal ASN.1 shape minibtc persists a DSA private
// key as. The standard library's x509 package has no PKCS8 marshaler for
// dsa.PrivateKey (only RSA/ECDSA/Ed25519/X25519), so wallets get their own
// small, explicit DER structure instead of a hand-rolled non-DER format.
// Spec.md leaves the on-disk key format unconstrained ("any standard DSA key
// serialization is acceptable"); this is that choice, made concrete.
type derDSAPrivateKey struct {
	P, Q, G, Y, X *big.Int
}

// GenerateKey produces a fresh 1024-bit DSA key pair.
func GenerateKey() (*dsa.PrivateKey, error) {
	params := dsa.Parameters{}
	if err := dsa.GenerateParameters(&params, rand.Reader, dsa.L1024N160); err != nil {
		return nil, err
	}
	priv := &dsa.PrivateKey{PublicKey: dsa.PublicKey{Parameters: params}}
	if err := dsa.GenerateKey(priv, rand.Reader); err != nil {
		return nil, err
	}
	return priv, nil
}

// MarshalPrivateKey DER-encodes priv for persistence to a wallet key file.
func MarshalPrivateKey(priv *dsa.PrivateKey) ([]byte, error) {
	return asn1.Marshal(derDSAPrivateKey{
		P: priv.P, Q: priv.Q, G: priv.G, Y: priv.Y, X: priv.X,
	})
}

// ParsePrivateKey decodes a DER-encoded DSA private key produced by MarshalPrivateKey.
func ParsePrivateKey(der []byte) (*dsa.PrivateKey, error) {
	var parsed derDSAPrivateKey
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return nil, err
	}
	if parsed.P == nil || parsed.Q == nil || parsed.G == nil || parsed.Y == nil || parsed.X == nil {
		return nil, errors.New("core: truncated DSA private key")
	}
	return &dsa.PrivateKey{
		PublicKey: dsa.PublicKey{
			Parameters: dsa.Parameters{P: parsed.P, Q: parsed.Q, G: parsed.G},
			Y:          parsed.Y,
		},
		X: parsed.X,
	}, nil
}

// MarshalPublicKeyDER returns the standard PKIX DER encoding of pub, the
// same encoding fed to Sha256 when deriving an address (§4.1). x509 can
// parse but not marshal DSA public keys, so the SubjectPublicKeyInfo is
// assembled here: the DSA OID with (P, Q, G) parameters, and Y as the key.
func MarshalPublicKeyDER(pub *dsa.PublicKey) ([]byte, error) {
	params, err := asn1.Marshal(struct{ P, Q, G *big.Int }{pub.P, pub.Q, pub.G})
	if err != nil {
		return nil, err
	}
	y, err := asn1.Marshal(pub.Y)
	if err != nil {
		return nil, err
	}
	return asn1.Marshal(struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}{
		Algorithm: pkix.AlgorithmIdentifier{Algorithm: asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}, Parameters: asn1.RawValue{FullBytes: params}},
		PublicKey: asn1.BitString{Bytes: y, BitLength: 8 * len(y)},
	})
}

// EncodePublicKey returns the base58 string form of pub's PKIX DER encoding.
// This is the "pubkey" string carried in CHECKSIG locks.
func EncodePublicKey(pub *dsa.PublicKey) (string, error) {
	der, err := MarshalPublicKeyDER(pub)
	if err != nil {
		return "", err
	}
	return base58.Encode(der), nil
}

// DecodePublicKey parses the base58 string produced by EncodePublicKey back
// into a DSA public key.
func DecodePublicKey(encoded string) (*dsa.PublicKey, error) {
	der, err := base58.Decode(encoded)
	if err != nil {
		return nil, err
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, err
	}
	dsaPub, ok := pub.(*dsa.PublicKey)
	if !ok {
		return nil, errors.New("core: not a DSA public key")
	}
	return dsaPub, nil
}

// Address derives the base58(sha256(DER(pubkey))) address for pub, per §4.1.
func Address(pub *dsa.PublicKey) (string, error) {
	der, err := MarshalPublicKeyDER(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return base58.Encode(sum[:]), nil
}

// AddressFromEncodedPublicKey derives the address directly from the base58
// pubkey string a lock script or coinbase output carries, without the
// caller needing to hold the private key. Mirrors the original source's
// address_from_pubkey (see SPEC_FULL.md "Supplemented features").
func AddressFromEncodedPublicKey(encoded string) (string, error) {
	pub, err := DecodePublicKey(encoded)
	if err != nil {
		return "", err
	}
	return Address(pub)
}

// Sign signs the canonical hash of obj with priv and returns the hex-encoded
// (r, s) signature, per §4.1 ("FIPS-186-3 DSA over SHA-256 of the canonical
// JSON of the signed object").
func Sign(priv *dsa.PrivateKey, obj interface{}) (string, error) {
	digest := sha256Of(obj)
	r, s, err := dsa.Sign(rand.Reader, priv, digest)
	if err != nil {
		return "", err
	}
	sig := append(leftPad(r, priv.Q), leftPad(s, priv.Q)...)
	return hex.EncodeToString(sig), nil
}

// Verify checks sig (hex-encoded) against obj's canonical hash under pub.
// It never panics or returns an error to the caller on malformed input —
// per §4.1 "verification fails -> returns false, never raises" — only a
// bool.
func Verify(pub *dsa.PublicKey, sig string, obj interface{}) bool {
	raw, err := hex.DecodeString(sig)
	if err != nil || len(raw) == 0 || len(raw)%2 != 0 {
		return false
	}
	half := len(raw) / 2
	r := new(big.Int).SetBytes(raw[:half])
	s := new(big.Int).SetBytes(raw[half:])
	digest := sha256Of(obj)
	return dsa.Verify(pub, digest, r, s)
}

func sha256Of(obj interface{}) []byte {
	encoded, err := json.Marshal(obj)
	if err != nil {
		log.Panicf("core: cannot canonicalize %T for signing: %v", obj, err)
	}
	sum := sha256.Sum256(encoded)
	return sum[:]
}

// leftPad pads b's bytes up to the byte length of the DSA subgroup order q,
// so signatures have a fixed, self-delimiting width regardless of leading
// zero bytes in r or s.
func leftPad(b, q *big.Int) []byte {
	width := (q.BitLen() + 7) / 8
	raw := b.Bytes()
	if len(raw) >= width {
		return raw
	}
	padded := make([]byte, width)
	copy(padded[width-len(raw):], raw)
	return padded
}
