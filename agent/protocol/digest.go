package protocol

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	schemaDigestPrefix   = "model:"
	protocolDigestPrefix = "proto:"
	addressPrefix        = "agent1"
	addressHexLen        = 40
)

var kindsByDigest = func() map[string]Kind {
	m := make(map[string]Kind, len(Kinds))
	for _, k := range Kinds {
		m[SchemaDigest(k)] = k
	}
	return m
}()

func SchemaDigest(kind Kind) string {
	sum := blake3.Sum256([]byte(kind))
	return schemaDigestPrefix + hex.EncodeToString(sum[:])
}

func ProtocolDigest(name, version string) string {
	sum := blake3.Sum256([]byte(name + ":" + version))
	return protocolDigestPrefix + hex.EncodeToString(sum[:])
}

// KindForDigest maps a schema digest back to its kind.
func KindForDigest(digest string) (Kind, bool) {
	k, ok := kindsByDigest[strings.TrimSpace(digest)]
	return k, ok
}

// DeriveAddress produces a stable agent address from a seed phrase.
func DeriveAddress(seed string) Address {
	sum := blake3.Sum256([]byte(seed))
	return Address(addressPrefix + hex.EncodeToString(sum[:])[:addressHexLen])
}
