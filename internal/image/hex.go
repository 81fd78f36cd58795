package image

import (
	"bufio"
	"bytes"
	"encoding/hex"

	"github.com/asteralabs/retimerfw/internal/retimerfwerr"
)

// Intel HEX record types this loader recognizes (spec.md §4.4, §6): only 0
// (data) and 1 (end-of-file) are parsed; any other record type is a parse
// error at that line.
const (
	recData = 0x00
	recEOF  = 0x01
)

// parseIntelHex is a byte-oriented state-machine parser, replacing the
// source's sscanf-based line parser (spec.md §9), that returns a precise
// HexParseError{line, position} on the first malformed record.
func parseIntelHex(raw []byte) (*Image, error) {
	img := &Image{}
	sawAnyRecord := false
	sawEOF := false

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimRight(scanner.Bytes(), "\r\n \t")
		if len(line) == 0 {
			continue
		}
		if line[0] != ':' {
			return nil, &retimerfwerr.HexParseError{Line: lineNo, Position: 0, Reason: "record does not start with ':'"}
		}
		rec, err := decodeRecord(line[1:])
		if err != nil {
			err.Line = lineNo
			return nil, err
		}
		sawAnyRecord = true
		switch rec.recType {
		case recData:
			if int(rec.addr)+len(rec.data) > Size {
				return nil, &retimerfwerr.HexParseError{Line: lineNo, Position: 3, Reason: "data record address range exceeds image size"}
			}
			copy(img.Data[rec.addr:], rec.data)
		case recEOF:
			sawEOF = true
		default:
			return nil, &retimerfwerr.HexParseError{Line: lineNo, Position: 7, Reason: "unsupported record type"}
		}
		if sawEOF {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &retimerfwerr.HexParseError{Line: lineNo, Position: 0, Reason: err.Error()}
	}
	if !sawAnyRecord {
		return nil, &retimerfwerr.HexParseError{Line: 0, Position: 0, Reason: "empty input"}
	}
	return img, nil
}

type hexRecord struct {
	length  int
	addr    uint16
	recType int
	data    []byte
	chksum  byte
}

// decodeRecord decodes the hex-encoded body of one Intel HEX line (without
// its leading ':'): {length(1B), address(2B), recordType(1B), data(lengthB),
// checksum(1B)} (spec.md §4.4).
func decodeRecord(body []byte) (hexRecord, *retimerfwerr.HexParseError) {
	raw := make([]byte, hex.DecodedLen(len(body)))
	n, err := hex.Decode(raw, body)
	if err != nil {
		pos := 1
		if _, ok := err.(hex.InvalidByteError); ok {
			if i := bytes.IndexFunc(body, func(r rune) bool {
				return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
			}); i >= 0 {
				pos = 1 + i
			}
		}
		return hexRecord{}, &retimerfwerr.HexParseError{Position: pos, Reason: "invalid hex digit"}
	}
	raw = raw[:n]
	if len(raw) < 5 {
		return hexRecord{}, &retimerfwerr.HexParseError{Position: 1, Reason: "record too short"}
	}

	length := int(raw[0])
	addr := uint16(raw[1])<<8 | uint16(raw[2])
	recType := int(raw[3])
	if len(raw) != 5+length {
		return hexRecord{}, &retimerfwerr.HexParseError{Position: 1, Reason: "declared length does not match record size"}
	}
	data := raw[4 : 4+length]
	chksum := raw[4+length]

	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return hexRecord{}, &retimerfwerr.HexParseError{Position: 2*len(raw) - 1, Reason: "checksum mismatch"}
	}

	return hexRecord{length: length, addr: addr, recType: recType, data: data, chksum: chksum}, nil
}
