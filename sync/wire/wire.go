// Package wire contains the CBOR payloads exchanged on the sync topics.
//
// Payloads are definite-length CBOR maps with small integer keys. Encoding
// is deterministic so a payload always serialises to the same bytes.
// Decoding is strict: unknown keys, duplicate keys and indefinite-length
// items are rejected.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// RootSize is the size of a tree root digest.
	RootSize = 32

	// PrefixThreshold is the document count above which a SYN request
	// carries a coarse horizontal slice of the sender's tree.
	PrefixThreshold = 64

	// MaxPrefixes caps the length of a SYN prefix slice.
	MaxPrefixes = 16384

	// MaxDocsSize caps the encoded size of an announcement's document
	// list.
	MaxDocsSize = 1 << 20
)

// Topic suffixes appended to a channel name.
const (
	TopicNew = ".new"
	TopicSyn = ".syn"
	TopicDif = ".dif"
	TopicPrv = ".prv"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: enc mode: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  4 * MaxPrefixes,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: dec mode: %v", err))
	}
}
