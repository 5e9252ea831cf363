package transport

import (
	"encoding/base32"
	"net"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	onionSuffix    = ".onion"
	onionV3Version = 0x03
)

var (
	onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)
	onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

	// checksumPrefix is part of the v3 onion address format.
	checksumPrefix = []byte(".onion checksum")
)

// IsOnionHost reports whether host (with or without a port) is a .onion name.
func IsOnionHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.HasSuffix(strings.ToLower(host), onionSuffix)
}

// CheckOnionHost validates a .onion crawl target before any request is made.
// A mistyped address would otherwise surface as one opaque proxy failure per
// retry.
//
// Design decision: We verify the v3 checksum rather than only the pattern
// because:
//  1. It catches typos before a multi-minute Tor bootstrap
//  2. It is the same check Tor performs when connecting
func CheckOnionHost(host string) error {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	// Subdomains of an onion service share its key
	labels := strings.Split(host, ".")
	if len(labels) > 2 {
		host = strings.Join(labels[len(labels)-2:], ".")
	}

	if onionV2Pattern.MatchString(host) {
		return ErrV2AddressDeprecated
	}
	if !IsValidV3Address(host) {
		return ErrInvalidOnionAddress
	}
	return nil
}

// IsValidV3Address checks the format, version byte and checksum of a v3
// onion address such as "xxxx...xxxx.onion".
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, onionSuffix)))
	if err != nil {
		return false
	}

	// 32-byte ed25519 key, 2-byte checksum, 1-byte version
	if len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]
	if version != onionV3Version {
		return false
	}

	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)

	return checksum[0] == sum[0] && checksum[1] == sum[1]
}
