package inspector

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"cloneguard-lab/internal/domain/models"
)

const (
	dexHeaderSize  = 0x70
	classDefSize   = 32
	maxDexFileSize = 256 << 20
)

var (
	dexMagic       = []byte("dex\n")
	dexNamePattern = regexp.MustCompile(`^classes(\d*)\.dex$`)

	errMalformedDex = errors.New("malformed dex file")
)

type dexHeader struct {
	stringIDsSize uint32
	stringIDsOff  uint32
	typeIDsSize   uint32
	typeIDsOff    uint32
	methodIDsSize uint32
	classDefsSize uint32
	classDefsOff  uint32
}

// extractDexStats totals class and method counts over every classes*.dex and
// samples up to sample class descriptors, primary dex first
func extractDexStats(zr *zip.Reader, sample int) (models.DexStats, error) {
	type dexEntry struct {
		order int
		file  *zip.File
	}
	var entries []dexEntry
	for _, f := range zr.File {
		m := dexNamePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		order := 1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			order = n
		}
		entries = append(entries, dexEntry{order: order, file: f})
	}
	if len(entries) == 0 {
		return models.DexStats{}, errors.New("no dex files present")
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].order < entries[b].order })

	var (
		classes, methods int
		names            []string
		parsed           int
	)
	for _, e := range entries {
		data, err := readZipFile(e.file, maxDexFileSize)
		if err != nil {
			continue
		}
		h, err := parseDexHeader(data)
		if err != nil {
			continue
		}
		parsed++
		classes += int(h.classDefsSize)
		methods += int(h.methodIDsSize)
		if len(names) < sample {
			names = append(names, classDescriptors(data, h, sample-len(names))...)
		}
	}
	if parsed == 0 {
		return models.DexStats{}, errMalformedDex
	}

	return models.DexStats{
		NumClasses:    &classes,
		NumMethods:    &methods,
		ClassesSample: names,
	}, nil
}

func parseDexHeader(data []byte) (dexHeader, error) {
	if len(data) < dexHeaderSize || !bytes.HasPrefix(data, dexMagic) {
		return dexHeader{}, errMalformedDex
	}
	le := binary.LittleEndian
	h := dexHeader{
		stringIDsSize: le.Uint32(data[0x38:]),
		stringIDsOff:  le.Uint32(data[0x3C:]),
		typeIDsSize:   le.Uint32(data[0x40:]),
		typeIDsOff:    le.Uint32(data[0x44:]),
		methodIDsSize: le.Uint32(data[0x58:]),
		classDefsSize: le.Uint32(data[0x60:]),
		classDefsOff:  le.Uint32(data[0x64:]),
	}
	if uint64(h.classDefsOff)+uint64(h.classDefsSize)*classDefSize > uint64(len(data)) {
		return dexHeader{}, fmt.Errorf("%w: class_defs out of range", errMalformedDex)
	}
	return h, nil
}

// classDescriptors resolves class_def -> type_id -> string_id -> string_data.
// Unresolvable entries are skipped.
func classDescriptors(data []byte, h dexHeader, limit int) []string {
	le := binary.LittleEndian
	size := uint64(len(data))
	var out []string

	for i := uint32(0); i < h.classDefsSize && len(out) < limit; i++ {
		defOff := uint64(h.classDefsOff) + uint64(i)*classDefSize
		typeIdx := le.Uint32(data[defOff:])
		if typeIdx >= h.typeIDsSize {
			continue
		}
		typeOff := uint64(h.typeIDsOff) + uint64(typeIdx)*4
		if typeOff+4 > size {
			continue
		}
		strIdx := le.Uint32(data[typeOff:])
		if strIdx >= h.stringIDsSize {
			continue
		}
		strOff := uint64(h.stringIDsOff) + uint64(strIdx)*4
		if strOff+4 > size {
			continue
		}
		dataOff := uint64(le.Uint32(data[strOff:]))
		if dataOff >= size {
			continue
		}
		if s, ok := readDexString(data[dataOff:]); ok {
			out = append(out, s)
		}
	}
	return out
}

// readDexString skips the uleb128 utf16 length and returns the MUTF-8 body
func readDexString(b []byte) (string, bool) {
	n := 0
	for ; n < len(b) && n < 5; n++ {
		if b[n]&0x80 == 0 {
			break
		}
	}
	if n >= len(b) || n == 5 {
		return "", false
	}
	b = b[n+1:]
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return "", false
	}
	return string(b[:end]), true
}
