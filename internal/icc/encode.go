package icc

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf16"
)

const (
	headerSize   = 128
	tagEntrySize = 12
	version43    = 0x04300000
)

// Header offsets
const (
	offSize       = 0
	offVersion    = 8
	offClass      = 12
	offColorSpace = 16
	offPCS        = 20
	offDate       = 24
	offSignature  = 36
	offFlags      = 44
	offIntent     = 64
	offIlluminant = 68
	offCreator    = 80
	offProfileID  = 84
	profileIDLen  = 16
)

var be = binary.BigEndian

type tag struct {
	sig  Signature
	data []byte
}

// builder assembles a profile. Tags with identical payloads share storage.
type builder struct {
	header [headerSize]byte
	tags   []tag
}

func newDisplayBuilder(created time.Time) *builder {
	b := &builder{}
	h := b.header[:]
	be.PutUint32(h[offVersion:], version43)
	be.PutUint32(h[offClass:], uint32(DisplayClassSignature))
	be.PutUint32(h[offColorSpace:], uint32(RGBSpaceSignature))
	be.PutUint32(h[offPCS:], uint32(XYZSpaceSignature))
	putDateTime(h[offDate:], created.UTC())
	be.PutUint32(h[offSignature:], uint32(ProfileFileSignature))
	putXYZ(h[offIlluminant:], pcsIlluminant)
	be.PutUint32(h[offCreator:], uint32(CreatorSignature))
	return b
}

func (b *builder) add(sig Signature, data []byte) {
	b.tags = append(b.tags, tag{sig: sig, data: data})
}

func (b *builder) encode() []byte {
	tableEnd := headerSize + 4 + len(b.tags)*tagEntrySize

	type placed struct{ offset, size int }
	var body bytes.Buffer
	placements := make([]placed, len(b.tags))
	for i, t := range b.tags {
		shared := false
		for j := 0; j < i; j++ {
			if bytes.Equal(b.tags[j].data, t.data) {
				placements[i] = placements[j]
				shared = true
				break
			}
		}
		if shared {
			continue
		}
		placements[i] = placed{offset: tableEnd + body.Len(), size: len(t.data)}
		body.Write(t.data)
		body.Write(make([]byte, pad4(len(t.data))))
	}

	out := make([]byte, tableEnd+body.Len())
	copy(out, b.header[:])
	be.PutUint32(out[offSize:], uint32(len(out)))
	be.PutUint32(out[headerSize:], uint32(len(b.tags)))
	for i, t := range b.tags {
		entry := out[headerSize+4+i*tagEntrySize:]
		be.PutUint32(entry[0:], uint32(t.sig))
		be.PutUint32(entry[4:], uint32(placements[i].offset))
		be.PutUint32(entry[8:], uint32(placements[i].size))
	}
	copy(out[tableEnd:], body.Bytes())

	id := computeID(out)
	copy(out[offProfileID:], id[:])
	return out
}

// computeID hashes the profile with the flags, rendering intent and
// profile ID header fields zeroed.
func computeID(profile []byte) [profileIDLen]byte {
	tmp := make([]byte, len(profile))
	copy(tmp, profile)
	clear(tmp[offFlags : offFlags+4])
	clear(tmp[offIntent : offIntent+4])
	clear(tmp[offProfileID : offProfileID+profileIDLen])
	return md5.Sum(tmp)
}

func pad4(n int) int {
	return (4 - n%4) % 4
}

func s15Fixed16(v float64) uint32 {
	return uint32(int32(math.Round(v * 65536)))
}

func fromS15Fixed16(v uint32) float64 {
	return float64(int32(v)) / 65536
}

func putXYZ(b []byte, v [3]float64) {
	for i := 0; i < 3; i++ {
		be.PutUint32(b[i*4:], s15Fixed16(v[i]))
	}
}

func putDateTime(b []byte, t time.Time) {
	fields := []int{t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()}
	for i, f := range fields {
		be.PutUint16(b[i*2:], uint16(f))
	}
}

func typeHeader(sig Signature, size int) []byte {
	out := make([]byte, 8, size)
	be.PutUint32(out, uint32(sig))
	return out
}

func encodeXYZ(v [3]float64) []byte {
	out := typeHeader(XYZTypeSignature, 20)
	out = out[:20]
	putXYZ(out[8:], v)
	return out
}

func encodeMatrix(m matrix3) []byte {
	out := typeHeader(S15Fixed16ArraySignature, 8+9*4)
	out = out[:8+9*4]
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			be.PutUint32(out[8+(i*3+j)*4:], s15Fixed16(m[i][j]))
		}
	}
	return out
}

// encodeGammaCurve writes a curveType holding a single u8Fixed8 exponent
func encodeGammaCurve(gamma float64) ([]byte, error) {
	fixed := math.Round(gamma * 256)
	if fixed <= 0 || fixed > math.MaxUint16 {
		return nil, fmt.Errorf("gamma %v out of range", gamma)
	}
	out := typeHeader(CurveTypeSignature, 14)
	out = out[:14]
	be.PutUint32(out[8:], 1)
	be.PutUint16(out[12:], uint16(fixed))
	return out, nil
}

func utf16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		be.PutUint16(out[i*2:], u)
	}
	return out
}

// encodeMLUC writes a multiLocalizedUnicodeType with a single en_US record
func encodeMLUC(text string) []byte {
	str := utf16BE(text)
	const recordsAt = 16
	const stringAt = recordsAt + 12
	out := typeHeader(MultiLocalisedUnicodeSignature, stringAt+len(str))
	out = out[:stringAt]
	be.PutUint32(out[8:], 1)
	be.PutUint32(out[12:], 12)
	copy(out[recordsAt:], "enUS")
	be.PutUint32(out[recordsAt+4:], uint32(len(str)))
	be.PutUint32(out[recordsAt+8:], stringAt)
	return append(out, str...)
}

// encodeDict writes a dictType of name/value strings, sorted by name
func encodeDict(entries map[string]string) []byte {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	const recordLen = 16
	recordsAt := 16
	stringsAt := recordsAt + len(keys)*recordLen

	out := typeHeader(DictTypeSignature, stringsAt)
	out = out[:stringsAt]
	be.PutUint32(out[8:], uint32(len(keys)))
	be.PutUint32(out[12:], recordLen)

	appendString := func(s string) (offset, size uint32) {
		str := utf16BE(s)
		offset = uint32(len(out))
		out = append(out, str...)
		out = append(out, make([]byte, pad4(len(str)))...)
		return offset, uint32(len(str))
	}
	for i, k := range keys {
		nameOff, nameLen := appendString(k)
		valueOff, valueLen := appendString(entries[k])
		rec := out[recordsAt+i*recordLen:]
		be.PutUint32(rec[0:], nameOff)
		be.PutUint32(rec[4:], nameLen)
		be.PutUint32(rec[8:], valueOff)
		be.PutUint32(rec[12:], valueLen)
	}
	return out
}
