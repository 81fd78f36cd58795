package fpga

import "github.com/snksoft/crc"

// crc32MPEG2Table matches spec.md §4.8's "CRC-32 of image bytes using the
// polynomial 0x04C11DB7, initial value 0xFFFFFFFF, no final XOR, MSB-first" —
// the table form canonically known as CRC-32/MPEG-2.
var crc32MPEG2Table = crc.NewTable(&crc.Parameters{
	Width:      32,
	Polynomial: 0x04C11DB7,
	Init:       0xFFFFFFFF,
	ReflectIn:  false,
	ReflectOut: false,
	FinalXor:   0x00000000,
})

func crc32MPEG2(data []byte) uint32 {
	return uint32(crc.CalculateCRC(crc32MPEG2Table, data))
}
