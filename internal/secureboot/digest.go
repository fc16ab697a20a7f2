package secureboot

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
)

const (
	// keyBits is the RSA modulus size required by Secure Boot V2.
	keyBits = 3072
	// modulusBytes is the byte width of the modulus fields in the
	// signature block key layout.
	modulusBytes = keyBits / 8

	// DigestSize is the size of the derived public key digest.
	DigestSize = sha256.Size
)

var (
	// ErrKeyNotFound indicates the signing key file is missing or unreadable.
	ErrKeyNotFound = errors.New("signing key not found")
	// ErrKeyMalformed indicates the signing key is present but is not a
	// recognized Secure Boot V2 key.
	ErrKeyMalformed = errors.New("signing key malformed")
)

// KeyError reports a signing key that could not be used for digest
// derivation. Unwrap distinguishes a missing key from a malformed one.
type KeyError struct {
	// Path is the signing key file involved.
	Path string
	// Reason explains the failure. It never contains key material.
	Reason string
	// Err is ErrKeyNotFound or ErrKeyMalformed.
	Err error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Err, e.Path, e.Reason)
}

// Unwrap returns the error subcase.
func (e *KeyError) Unwrap() error {
	return e.Err
}

// DeriveDigest computes the Secure Boot V2 public key digest for the
// signing key at keyPath: the SHA-256 over the public key fields exactly
// as they appear in a signature block (little-endian modulus, exponent,
// Montgomery R² and M'). The result is what gets burned into device
// eFuses, so identical keys always yield identical digests.
//
// The private key is read only for the duration of this call; the raw
// bytes are wiped before returning on every path, and nothing derived
// from the private half is logged or written.
func DeriveDigest(keyPath string) ([]byte, error) {
	contents, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return nil, &KeyError{Path: keyPath, Reason: readReason(err), Err: ErrKeyNotFound}
	}

	defer wipe(contents)

	publicKey, err := parsePublicKey(contents)
	if err != nil {
		return nil, &KeyError{Path: keyPath, Reason: err.Error(), Err: ErrKeyMalformed}
	}

	digest := sha256.Sum256(signatureBlockKey(publicKey))

	return digest[:], nil
}

// readReason strips the path from the underlying read error, the
// KeyError already carries it.
func readReason(err error) string {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error()
	}

	return err.Error()
}

// parsePublicKey extracts the RSA-3072 public half from PEM-encoded
// private key material. PKCS#1 and PKCS#8 encodings are accepted;
// anything else is reported as malformed without echoing key bytes.
func parsePublicKey(contents []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(contents)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	defer wipe(block.Bytes)

	var (
		key any
		err error
	)

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return nil, errors.New("ECDSA keys are not supported for this digest")
	case "ENCRYPTED PRIVATE KEY":
		return nil, errors.New("encrypted private keys are not supported")
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}

	if err != nil {
		return nil, errors.New("private key does not parse")
	}

	switch typed := key.(type) {
	case *rsa.PrivateKey:
		if typed.N.BitLen() != keyBits {
			return nil, fmt.Errorf("RSA key is %d bits, Secure Boot V2 requires %d", typed.N.BitLen(), keyBits)
		}

		return &typed.PublicKey, nil
	case *ecdsa.PrivateKey:
		return nil, errors.New("ECDSA keys are not supported for this digest")
	default:
		return nil, errors.New("unsupported private key type")
	}
}

// signatureBlockKey serializes the public key in the signature block
// layout: modulus (LE), exponent (LE), R² mod n (LE), and the low 32
// bits of the negated Montgomery inverse of n.
func signatureBlockKey(publicKey *rsa.PublicKey) []byte {
	buf := make([]byte, 0, 2*modulusBytes+8)

	buf = append(buf, littleEndian(publicKey.N)...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(publicKey.E))

	rr := new(big.Int).Lsh(big.NewInt(1), keyBits*2)
	rr.Mod(rr, publicKey.N)
	buf = append(buf, littleEndian(rr)...)

	word := new(big.Int).Lsh(big.NewInt(1), 32)
	inverse := new(big.Int).ModInverse(publicKey.N, word)
	mdash := new(big.Int).Sub(word, inverse)
	mdash.Mod(mdash, word)

	return binary.LittleEndian.AppendUint32(buf, uint32(mdash.Uint64()))
}

// littleEndian renders x as a fixed-width little-endian word.
func littleEndian(x *big.Int) []byte {
	be := make([]byte, modulusBytes)
	x.FillBytes(be)

	for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
		be[i], be[j] = be[j], be[i]
	}

	return be
}

// wipe zeroes sensitive byte buffers.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
