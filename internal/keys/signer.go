// Package keys holds the publisher's secp256k1 key and produces BIP-340
// Schnorr signatures over record ids.
package keys

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/bech32"

	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/record"
)

const (
	hrpSecret = "nsec"
	hrpPublic = "npub"
)

// Signer signs records with a single secret key. Signatures use the
// deterministic BIP-340 nonce, so the same record always signs identically.
type Signer struct {
	priv   *btcec.PrivateKey
	pubHex string
}

// Parse accepts a secret key as nsec bech32 or 64 hex characters.
func Parse(secret string) (*Signer, error) {
	raw, err := decodeSecret(strings.TrimSpace(secret))
	if err != nil {
		return nil, err
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, ferrors.ConfigError("secret key must be 32 bytes").
			WithContext("length", len(raw)).Build()
	}
	priv, pub := btcec.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, ferrors.ConfigError("secret key is zero").Build()
	}
	return &Signer{
		priv:   priv,
		pubHex: hex.EncodeToString(schnorr.SerializePubKey(pub)),
	}, nil
}

func decodeSecret(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ferrors.ConfigError("secret key is empty").Build()
	}
	if strings.HasPrefix(strings.ToLower(secret), hrpSecret+"1") {
		hrp, data, err := bech32.Decode(secret)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid nsec key").Build()
		}
		if hrp != hrpSecret {
			return nil, ferrors.ConfigError("unexpected bech32 prefix").WithContext("prefix", hrp).Build()
		}
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid nsec payload").Build()
		}
		return raw, nil
	}
	raw, err := hex.DecodeString(secret)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "secret key is neither nsec nor hex").Build()
	}
	return raw, nil
}

// PubKey returns the x-only public key in hex.
func (s *Signer) PubKey() string { return s.pubHex }

// NPub returns the public key in npub bech32 form.
func (s *Signer) NPub() string {
	raw, _ := hex.DecodeString(s.pubHex)
	return encode(hrpPublic, raw)
}

// NSec returns the secret key in nsec bech32 form.
func (s *Signer) NSec() string {
	return encode(hrpSecret, s.priv.Serialize())
}

func encode(hrp string, raw []byte) string {
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return ""
	}
	out, err := bech32.Encode(hrp, data)
	if err != nil {
		return ""
	}
	return out
}

// Sign sets PubKey, ID and Sig on r. Any previous id or signature is replaced.
func (s *Signer) Sign(r *record.Record) error {
	if r.PubKey != "" && r.PubKey != s.pubHex {
		return ferrors.InternalError("record author does not match signing key").
			WithContext("record_pubkey", r.PubKey).WithContext("signer_pubkey", s.pubHex).Build()
	}
	r.PubKey = s.pubHex
	hash := r.Hash()
	sig, err := schnorr.Sign(s.priv, hash[:])
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "schnorr signing failed").
			WithContext("d_tag", r.DTag()).Build()
	}
	r.ID = hex.EncodeToString(hash[:])
	r.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that r's id matches its content and that Sig is a valid
// signature by PubKey.
func Verify(r *record.Record) error {
	if !r.CheckID() {
		return ferrors.ValidationError("record id does not match content").
			WithContext("event_id", r.ID).WithContext("d_tag", r.DTag()).Build()
	}
	pubRaw, err := hex.DecodeString(r.PubKey)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "record pubkey is not hex").Build()
	}
	pub, err := schnorr.ParsePubKey(pubRaw)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "record pubkey is not a curve point").Build()
	}
	sigRaw, err := hex.DecodeString(r.Sig)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "record signature is not hex").Build()
	}
	sig, err := schnorr.ParseSignature(sigRaw)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "malformed record signature").Build()
	}
	idRaw, _ := hex.DecodeString(r.ID)
	if !sig.Verify(idRaw, pub) {
		return ferrors.ValidationError("record signature does not verify").
			WithContext("event_id", r.ID).Build()
	}
	return nil
}
