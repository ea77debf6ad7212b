package module

import (
	"encoding/binary"
	"encoding/hex"
	"hash"

	"github.com/zeebo/blake3"
)

// Digest returns a hex BLAKE3 digest of the tree's shape: names, types,
// replace flags and children. Module paths are not part of the digest.
func (n *Node) Digest() string {
	h := blake3.New()
	n.hashInto(h)
	return hex.EncodeToString(h.Sum(nil))
}

func (n *Node) hashInto(h hash.Hash) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(n.Name)))
	h.Write(buf[:])
	h.Write([]byte(n.Name))

	flags := byte(n.Type) << 1
	if n.Replace {
		flags |= 1
	}
	h.Write([]byte{flags})

	binary.LittleEndian.PutUint64(buf[:], uint64(len(n.Children)))
	h.Write(buf[:])
	for _, name := range n.SortedNames() {
		n.Children[name].hashInto(h)
	}
}
