package image

import (
	"strconv"

	"github.com/snksoft/crc"
)

// Block is one framed unit of the EEPROM image's block-CRC layout
// (spec.md §4.6.C): a 13-byte header, a variable-length body, and a trailing
// CRC-8 byte covering header+body.
type Block struct {
	Header [13]byte
	Body   []byte
	CRC    byte
}

// blockCRCTable matches the CRC-8 parameters transport already uses for PEC,
// so the block-CRC audit and the wire-level PEC share one CRC engine
// (spec.md §4.6.C, §9).
var blockCRCTable = crc.NewTable(&crc.Parameters{
	Width:      8,
	Polynomial: 0x07,
	Init:       0x00,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0x00,
})

// blockTerminatorType marks the header byte that ends the block chain; a
// block whose type byte (header[0]) equals this value has no body or CRC.
const blockTerminatorType = 0xFF

// Blocks walks the image's block-CRC chain from offset 0 up to End(),
// stopping at a terminator-type header. Each block's declared length plus
// its 13-byte header and 1-byte CRC must stay inside the image, or the walk
// stops with an error (spec.md §9 edge case).
func (img *Image) Blocks() ([]Block, error) {
	end := img.End()
	var blocks []Block
	off := 0
	for off < end {
		if off+13 > end {
			return nil, &blockFrameError{offset: off, reason: "truncated header"}
		}
		var hdr [13]byte
		copy(hdr[:], img.Data[off:off+13])
		if hdr[0] == blockTerminatorType {
			break
		}
		bodyLen := int(hdr[1]) | int(hdr[2])<<8
		bodyStart := off + 13
		bodyEnd := bodyStart + bodyLen
		if bodyEnd+1 > end {
			return nil, &blockFrameError{offset: off, reason: "body/crc extends past image end"}
		}
		body := make([]byte, bodyLen)
		copy(body, img.Data[bodyStart:bodyEnd])
		blocks = append(blocks, Block{Header: hdr, Body: body, CRC: img.Data[bodyEnd]})
		off = bodyEnd + 1
	}
	return blocks, nil
}

// BlockCRCs computes the expected CRC-8 byte for every block in blocks,
// covering each block's header and body (spec.md §4.6.C).
func BlockCRCs(blocks []Block) []byte {
	out := make([]byte, len(blocks))
	for i, b := range blocks {
		buf := make([]byte, 0, len(b.Header)+len(b.Body))
		buf = append(buf, b.Header[:]...)
		buf = append(buf, b.Body...)
		out[i] = byte(crc.CalculateCRC(blockCRCTable, buf))
	}
	return out
}

type blockFrameError struct {
	offset int
	reason string
}

func (e *blockFrameError) Error() string {
	return "retimerfw: block frame error at offset " + strconv.Itoa(e.offset) + ": " + e.reason
}
