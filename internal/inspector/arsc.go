package inspector

import (
	"archive/zip"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

const (
	resTableType      = 0x0002
	resStringPoolType = 0x0001
	utf8PoolFlag      = 1 << 8

	maxResourceTableSize = 64 << 20
	maxPoolStrings       = 1 << 20
)

var errMalformedStringPool = errors.New("malformed string pool")

// extractResourceStrings returns the global string pool of resources.arsc.
// Strings appear in pool order; empty entries are dropped.
func extractResourceStrings(zr *zip.Reader) ([]string, error) {
	f := findZipFile(zr, "resources.arsc")
	if f == nil {
		return nil, errors.New("resources.arsc not present")
	}
	data, err := readZipFile(f, maxResourceTableSize)
	if err != nil {
		return nil, err
	}
	return parseResourceTableStrings(data)
}

func parseResourceTableStrings(data []byte) ([]string, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("resource table too short: %d bytes", len(data))
	}
	if t := binary.LittleEndian.Uint16(data[0:]); t != resTableType {
		return nil, fmt.Errorf("unexpected resource table chunk type 0x%04x", t)
	}
	headerSize := int(binary.LittleEndian.Uint16(data[2:]))
	if headerSize < 12 || headerSize >= len(data) {
		return nil, fmt.Errorf("invalid resource table header size %d", headerSize)
	}
	return parseStringPool(data[headerSize:])
}

// parseStringPool decodes a ResStringPool chunk at the start of chunk
func parseStringPool(chunk []byte) ([]string, error) {
	if len(chunk) < 28 {
		return nil, errMalformedStringPool
	}
	if t := binary.LittleEndian.Uint16(chunk[0:]); t != resStringPoolType {
		return nil, fmt.Errorf("unexpected string pool chunk type 0x%04x", t)
	}

	headerSize := int(binary.LittleEndian.Uint16(chunk[2:]))
	size := int(binary.LittleEndian.Uint32(chunk[4:]))
	count := int(binary.LittleEndian.Uint32(chunk[8:]))
	flags := binary.LittleEndian.Uint32(chunk[16:])
	stringsStart := int(binary.LittleEndian.Uint32(chunk[20:]))

	if size > len(chunk) || size < headerSize || headerSize < 28 {
		return nil, errMalformedStringPool
	}
	if count > maxPoolStrings || headerSize+count*4 > size || stringsStart > size {
		return nil, errMalformedStringPool
	}
	chunk = chunk[:size]

	isUTF8 := flags&utf8PoolFlag != 0
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		off := int(binary.LittleEndian.Uint32(chunk[headerSize+i*4:]))
		pos := stringsStart + off
		if pos < 0 || pos >= len(chunk) {
			return nil, errMalformedStringPool
		}

		var (
			s   string
			err error
		)
		if isUTF8 {
			s, err = decodeUTF8PoolString(chunk[pos:])
		} else {
			s, err = decodeUTF16PoolString(chunk[pos:])
		}
		if err != nil {
			return nil, err
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// utf8 entries carry a utf16 length and a byte length, each one or two bytes
func decodeUTF8PoolString(b []byte) (string, error) {
	_, n, ok := poolLength8(b)
	if !ok {
		return "", errMalformedStringPool
	}
	b = b[n:]
	length, n, ok := poolLength8(b)
	if !ok {
		return "", errMalformedStringPool
	}
	b = b[n:]
	if length > len(b) {
		return "", errMalformedStringPool
	}
	return string(b[:length]), nil
}

func poolLength8(b []byte) (int, int, bool) {
	if len(b) < 1 {
		return 0, 0, false
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1, true
	}
	if len(b) < 2 {
		return 0, 0, false
	}
	return int(b[0]&0x7f)<<8 | int(b[1]), 2, true
}

func decodeUTF16PoolString(b []byte) (string, error) {
	if len(b) < 2 {
		return "", errMalformedStringPool
	}
	length := int(binary.LittleEndian.Uint16(b))
	b = b[2:]
	if length&0x8000 != 0 {
		if len(b) < 2 {
			return "", errMalformedStringPool
		}
		length = (length&0x7fff)<<16 | int(binary.LittleEndian.Uint16(b))
		b = b[2:]
	}
	if length*2 > len(b) {
		return "", errMalformedStringPool
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units)), nil
}
