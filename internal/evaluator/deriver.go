// ============================================================================
// Key/Address Deriver
// ============================================================================
//
// Package: internal/evaluator
// File: deriver.go
// Purpose: Derive one Bitcoin address from a candidate mnemonic along a
// BIP-32 path. Pure function over its inputs, no shared state, safe to call
// from any number of workers concurrently.
//
// ============================================================================

package evaluator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/tyler-smith/go-bip39"
)

// AddressType selects the encoding of the derived address.
type AddressType string

const (
	AddressP2PKH      AddressType = "p2pkh"
	AddressP2WPKH     AddressType = "p2wpkh"
	AddressP2SHP2WPKH AddressType = "p2sh-p2wpkh"
)

var (
	// ErrUnsupportedAddressType is returned for address types the deriver
	// cannot encode.
	ErrUnsupportedAddressType = errors.New("unsupported address type")
	// ErrInvalidNetwork is returned for networks other than mainnet/testnet.
	ErrInvalidNetwork = errors.New("invalid network, use mainnet or testnet")
)

// ParseAddressType validates an address type string.
func ParseAddressType(s string) (AddressType, error) {
	switch AddressType(strings.ToLower(s)) {
	case AddressP2PKH:
		return AddressP2PKH, nil
	case AddressP2WPKH:
		return AddressP2WPKH, nil
	case AddressP2SHP2WPKH:
		return AddressP2SHP2WPKH, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedAddressType, s)
}

// ParseNetwork maps a network name onto its chain parameters.
func ParseNetwork(s string) (*chaincfg.Params, error) {
	switch strings.ToLower(s) {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidNetwork, s)
}

// ParsePath parses a derivation path such as "m/44'/0'/0'/0/0" into child
// indices, with ' (or h/H) marking hardened steps.
func ParsePath(path string) ([]uint32, error) {
	parts := strings.Split(strings.TrimSpace(path), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("derivation path must start with m: %q", path)
	}

	steps := make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := false
		switch {
		case strings.HasSuffix(part, "'"):
			hardened = true
			part = strings.TrimSuffix(part, "'")
		case strings.HasSuffix(part, "h"), strings.HasSuffix(part, "H"):
			hardened = true
			part = part[:len(part)-1]
		}
		idx, err := strconv.ParseUint(part, 10, 32)
		if err != nil || idx >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("invalid derivation path component %q in %q", part, path)
		}
		step := uint32(idx)
		if hardened {
			step += hdkeychain.HardenedKeyStart
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// Deriver produces one address string for a mnemonic. The concrete
// implementation is injected so the scheduler and evaluator can be exercised
// without touching the cryptographic stack.
type Deriver interface {
	DeriveAddress(mnemonic string) (string, error)
}

// HDDeriver derives addresses via BIP-39 seed plus BIP-32 child derivation.
type HDDeriver struct {
	steps    []uint32
	params   *chaincfg.Params
	addrType AddressType
}

// NewHDDeriver builds a deriver for the given path, network and address type.
func NewHDDeriver(path, network, addressType string) (*HDDeriver, error) {
	steps, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	params, err := ParseNetwork(network)
	if err != nil {
		return nil, err
	}
	addrType, err := ParseAddressType(addressType)
	if err != nil {
		return nil, err
	}
	return &HDDeriver{steps: steps, params: params, addrType: addrType}, nil
}

// DeriveAddress derives the address at the configured path. The mnemonic is
// assumed to have passed checksum validation already.
func (d *HDDeriver) DeriveAddress(mnemonic string) (string, error) {
	seed := bip39.NewSeed(mnemonic, "")

	key, err := hdkeychain.NewMaster(seed, d.params)
	if err != nil {
		return "", fmt.Errorf("failed to derive master key: %w", err)
	}
	for _, step := range d.steps {
		key, err = key.Derive(step)
		if err != nil {
			return "", fmt.Errorf("failed to derive child key: %w", err)
		}
	}

	pubKey, err := key.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to extract public key: %w", err)
	}
	pubKeyHash := btcutil.Hash160(pubKey.SerializeCompressed())

	switch d.addrType {
	case AddressP2PKH:
		addr, err := btcutil.NewAddressPubKeyHash(pubKeyHash, d.params)
		if err != nil {
			return "", fmt.Errorf("failed to encode p2pkh address: %w", err)
		}
		return addr.EncodeAddress(), nil

	case AddressP2WPKH:
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, d.params)
		if err != nil {
			return "", fmt.Errorf("failed to encode p2wpkh address: %w", err)
		}
		return addr.EncodeAddress(), nil

	case AddressP2SHP2WPKH:
		witAddr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, d.params)
		if err != nil {
			return "", fmt.Errorf("failed to build witness program: %w", err)
		}
		script, err := txscript.PayToAddrScript(witAddr)
		if err != nil {
			return "", fmt.Errorf("failed to build redeem script: %w", err)
		}
		addr, err := btcutil.NewAddressScriptHash(script, d.params)
		if err != nil {
			return "", fmt.Errorf("failed to encode p2sh-p2wpkh address: %w", err)
		}
		return addr.EncodeAddress(), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedAddressType, d.addrType)
}
