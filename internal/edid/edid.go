// Package edid decodes the identity and colorimetry of a display from its
// EDID base block.
package edid

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"strconv"
)

const (
	// MinSize is the length of the EDID base block.
	MinSize = 128

	// GammaUndefined marks an EDID that does not declare a transfer gamma.
	GammaUndefined = -1.0

	UnknownVendor = "unknown"
	UnknownModel  = "unknown"
)

// Descriptor block tags
const (
	descriptorSerial         = 0xff
	descriptorText           = 0xfe
	descriptorMonitorName    = 0xfc
	descriptorColorPoint     = 0xfb
	descriptorColorMgmtData  = 0xf9
	descriptorStart          = 54
	descriptorSize           = 18
	descriptorEnd            = 126
	descriptorTextOffset     = 5
	descriptorTextLen        = 12
	maxNonPrintableTolerated = 4
)

var header = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

// Chromaticity is a CIE 1931 xy coordinate
type Chromaticity struct {
	X float64
	Y float64
}

// WhitePoint is the white chromaticity plus its relative luminance
type WhitePoint struct {
	X         float64
	Y         float64
	Luminance float64
}

// Identity is the decoded, display-relevant subset of an EDID blob.
//
// Vendor and Model always hold a value after a successful decode; the Has*
// flags report whether the value came from the EDID itself or is a fallback.
type Identity struct {
	ContentID        string
	ManufacturerCode string
	Vendor           string
	Model            string
	Serial           string
	HasVendor        bool
	HasModel         bool
	HasSerial        bool
	SRGB             bool
	Gamma            float64
	Red              Chromaticity
	Green            Chromaticity
	Blue             Chromaticity
	White            WhitePoint
	Valid            bool
}

// GammaDefined reports whether the EDID declared a transfer gamma
func (id Identity) GammaDefined() bool {
	return id.Gamma > 0
}

// VendorResolver maps a 3-letter PNP manufacturer code to a vendor name
type VendorResolver interface {
	Vendor(code string) (string, bool)
}

// ContentID returns the lowercase hex MD5 of data.
func ContentID(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Parse decodes data into an Identity. It never fails: malformed input
// yields an Identity carrying only its ContentID.
func Parse(data []byte, resolver VendorResolver) Identity {
	return ParseWithLogger(data, resolver, nil)
}

// ParseWithLogger is Parse with rejections and ignored descriptors reported
// to logger.
func ParseWithLogger(data []byte, resolver VendorResolver, logger *slog.Logger) Identity {
	if logger == nil {
		logger = slog.Default()
	}

	id := Identity{
		ContentID: ContentID(data),
		Gamma:     GammaUndefined,
	}

	if len(data) == 0 {
		logger.Debug("empty EDID")
		return id
	}
	if len(data) < MinSize {
		logger.Warn("EDID too short", "size", len(data), "content_id", id.ContentID)
		return id
	}
	if !bytes.Equal(data[:len(header)], header) {
		logger.Warn("EDID has an invalid header", "content_id", id.ContentID)
		return id
	}
	if checksum(data[:MinSize]) != 0 {
		logger.Warn("EDID checksum mismatch", "content_id", id.ContentID)
		return id
	}
	id.Valid = true

	id.ManufacturerCode = manufacturerCode(data[8], data[9])
	if resolver != nil {
		if name, ok := resolver.Vendor(id.ManufacturerCode); ok && name != "" {
			id.Vendor = name
			id.HasVendor = true
		}
	}

	if serial := binary.LittleEndian.Uint32(data[12:16]); serial > 0 {
		id.Serial = strconv.FormatUint(uint64(serial), 10)
		id.HasSerial = true
	}

	if data[23] != 0xff {
		id.Gamma = 1 + float64(data[23])/100
	}
	id.SRGB = data[24]&0x04 != 0

	id.Red.X = fraction(data[25], 6, data[27])
	id.Red.Y = fraction(data[25], 4, data[28])
	id.Green.X = fraction(data[25], 2, data[29])
	id.Green.Y = fraction(data[25], 0, data[30])
	id.Blue.X = fraction(data[26], 6, data[31])
	id.Blue.Y = fraction(data[26], 4, data[32])
	id.White.X = fraction(data[26], 2, data[33])
	id.White.Y = fraction(data[26], 0, data[34])
	id.White.Luminance = 1

	for i := descriptorStart; i < descriptorEnd; i += descriptorSize {
		block := data[i : i+descriptorSize]

		// detailed timing descriptors carry a pixel clock here
		if block[0] != 0 || block[1] != 0 || block[2] != 0 || block[4] != 0 {
			continue
		}

		text := block[descriptorTextOffset : descriptorTextOffset+descriptorTextLen]
		switch block[3] {
		case descriptorMonitorName:
			if s, ok := parseString(text); ok {
				id.Model = s
				id.HasModel = true
			}
		case descriptorSerial:
			if s, ok := parseString(text); ok {
				id.Serial = s
				id.HasSerial = true
			}
		case descriptorText:
		case descriptorColorPoint:
			logger.Debug("ignoring EDID color point descriptor", "content_id", id.ContentID)
		case descriptorColorMgmtData:
			logger.Debug("ignoring EDID color management descriptor", "content_id", id.ContentID)
		}
	}

	if !id.HasVendor {
		id.Vendor = UnknownVendor
	}
	if !id.HasModel {
		id.Model = UnknownModel
	}

	return id
}

func checksum(block []byte) byte {
	var sum byte
	for _, b := range block {
		sum += b
	}
	return sum
}

// manufacturerCode unpacks three 5-bit letters from the big-endian word at
// bytes 8-9 ('A' == 1).
func manufacturerCode(hi, lo byte) string {
	return string([]byte{
		'A' - 1 + (hi>>2)&0x1f,
		'A' - 1 + (hi<<3)&0x18 + (lo>>5)&0x07,
		'A' - 1 + lo&0x1f,
	})
}

// fraction combines two low bits taken from lo at shift with the eight high
// bits in hi into a 10-bit binary fraction.
func fraction(lo byte, shift uint, hi byte) float64 {
	v := uint16(lo>>shift)&0x03 | uint16(hi)<<2
	return float64(v) / 1024
}

// parseString cleans a descriptor text field. The text ends at the first
// NUL or line break; surrounding ASCII whitespace is trimmed and each
// non-printable byte is replaced with '-'. Fields that end up empty or
// with too many replacements are rejected.
func parseString(field []byte) (string, bool) {
	end := len(field)
	for i, b := range field {
		if b == 0 || b == '\n' || b == '\r' {
			end = i
			break
		}
	}
	s := trimASCIISpace(field[:end])
	if len(s) == 0 {
		return "", false
	}

	out := make([]byte, len(s))
	bad := 0
	for i, b := range s {
		if b < 0x20 || b > 0x7e {
			out[i] = '-'
			bad++
			continue
		}
		out[i] = b
	}
	if bad > maxNonPrintableTolerated {
		return "", false
	}
	return string(out), true
}

func trimASCIISpace(b []byte) []byte {
	isSpace := func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\v' || c == '\f' || c == '\r'
	}
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}
