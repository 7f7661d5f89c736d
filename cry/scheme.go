// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
)

// Algorithm names a supported signature scheme. The set is closed; an unknown
// algorithm at runtime is a fatal condition for the validator.
type Algorithm string

const (
	ED25519   Algorithm = "ED25519"
	SECP256K1 Algorithm = "SECP256K1"
)

// ErrUnsupportedAlgorithm is returned for algorithms outside the closed set.
var ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

// Supported reports whether the algorithm belongs to the closed set.
func (a Algorithm) Supported() bool {
	return a == ED25519 || a == SECP256K1
}

// GenerateKey creates a fresh private key for the algorithm.
func GenerateKey(alg Algorithm) (priv []byte, pub []byte, err error) {
	switch alg {
	case ED25519:
		pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, errors.Wrap(err, "generate ed25519 key")
		}
		return privKey, pubKey, nil
	case SECP256K1:
		privKey, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, errors.Wrap(err, "generate secp256k1 key")
		}
		return privKey.Serialize(), privKey.PubKey().SerializeCompressed(), nil
	default:
		return nil, nil, ErrUnsupportedAlgorithm
	}
}

// Sign signs msg with the private key under the given algorithm and returns
// the signature along with the matching public key.
func Sign(alg Algorithm, priv []byte, msg []byte) (sig []byte, pub []byte, err error) {
	switch alg {
	case ED25519:
		if len(priv) != ed25519.PrivateKeySize {
			return nil, nil, errors.New("invalid ed25519 private key size")
		}
		key := ed25519.PrivateKey(priv)
		return ed25519.Sign(key, msg), key.Public().(ed25519.PublicKey), nil
	case SECP256K1:
		key := secp256k1.PrivKeyFromBytes(priv)
		digest := HashSum(msg)
		sig := secpecdsa.Sign(key, digest[:])
		return sig.Serialize(), key.PubKey().SerializeCompressed(), nil
	default:
		return nil, nil, ErrUnsupportedAlgorithm
	}
}

// Verify checks sig over msg for the given public key and algorithm.
// A failed check returns false with nil error; malformed inputs return errors.
func Verify(alg Algorithm, pub []byte, msg []byte, sig []byte) (bool, error) {
	switch alg {
	case ED25519:
		if len(pub) != ed25519.PublicKeySize {
			return false, errors.New("invalid ed25519 public key size")
		}
		return ed25519.Verify(ed25519.PublicKey(pub), msg, sig), nil
	case SECP256K1:
		pubKey, err := secp256k1.ParsePubKey(pub)
		if err != nil {
			return false, errors.Wrap(err, "parse secp256k1 public key")
		}
		parsedSig, err := secpecdsa.ParseDERSignature(sig)
		if err != nil {
			return false, errors.Wrap(err, "parse secp256k1 signature")
		}
		digest := HashSum(msg)
		return parsedSig.Verify(digest[:], pubKey), nil
	default:
		return false, ErrUnsupportedAlgorithm
	}
}
