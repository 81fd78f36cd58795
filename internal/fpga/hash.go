package fpga

import (
	"crypto/sha512"

	"github.com/asteralabs/retimerfw/internal/image"
)

// Digest is the retimer-reported content hash of its staged DPRAM image,
// mirroring the "SHA384"-named-property object spec.md §4.8 describes.
type Digest struct {
	Algorithm string
	Value     [48]byte
}

// HashReader drains a retimer's staged DPRAM image through Bridge.Read and
// hashes it, for confirming a read-back without keeping the full image in
// memory twice.
type HashReader struct {
	bridge *Bridge
}

// NewHashReader constructs a HashReader over an already-configured Bridge.
func NewHashReader(bridge *Bridge) *HashReader {
	return &HashReader{bridge: bridge}
}

// Hash zero-fills a staging image, triggers a read for retimer, drains the
// DPRAM, and streams the result through SHA-384 in 64 KiB blocks.
func (h *HashReader) Hash(retimer uint8) (Digest, error) {
	if err := writePaged(h.bridge.io, offImageBase, make([]byte, image.Size)); err != nil {
		return Digest{}, err
	}
	data, err := h.bridge.Read(retimer)
	if err != nil {
		return Digest{}, err
	}

	sum := sha512.New384()
	const blockSize = 65536
	for off := 0; off < len(data); off += blockSize {
		end := off + blockSize
		if end > len(data) {
			end = len(data)
		}
		sum.Write(data[off:end])
	}

	var digest Digest
	digest.Algorithm = "SHA384"
	copy(digest.Value[:], sum.Sum(nil))
	return digest, nil
}
