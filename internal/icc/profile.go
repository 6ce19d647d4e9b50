// Package icc reads and synthesizes ICC color profiles for displays.
package icc

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"strings"
	"unicode/utf16"
)

// ErrInvalidProfile is returned for data that is not a well-formed ICC profile
var ErrInvalidProfile = errors.New("invalid ICC profile")

// Metadata keys written into synthesized profiles
const (
	MetaProduct    = "CMF_product"
	MetaBinary     = "CMF_binary"
	MetaVersion    = "CMF_version"
	MetaEDIDMD5    = "EDID_md5"
	MetaEDIDModel  = "EDID_model"
	MetaEDIDSerial = "EDID_serial"
	MetaEDIDMnft   = "EDID_mnft"
	MetaEDIDVendor = "EDID_vendor"
	MetaDataSource = "DATA_source"
	DataSourceEDID = "edid"
)

// Profile is a parsed ICC profile. The raw bytes are kept verbatim.
type Profile struct {
	data        []byte
	class       Signature
	tags        map[Signature][]byte
	metadata    map[string]string
	description string
	vcgt        *videoCardGamma
}

// Parse validates data and indexes its tags. Optional tags that fail to
// decode are skipped.
func Parse(data []byte) (*Profile, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidProfile, len(data))
	}
	size := int(be.Uint32(data[offSize:]))
	if size < headerSize+4 || size > len(data) {
		return nil, fmt.Errorf("%w: declared size %d, have %d bytes", ErrInvalidProfile, size, len(data))
	}
	data = data[:size]
	if sig := Signature(be.Uint32(data[offSignature:])); sig != ProfileFileSignature {
		return nil, fmt.Errorf("%w: bad signature %s", ErrInvalidProfile, sig)
	}

	count := int(be.Uint32(data[headerSize:]))
	if count > (size-headerSize-4)/tagEntrySize {
		return nil, fmt.Errorf("%w: tag table with %d entries overflows profile", ErrInvalidProfile, count)
	}

	p := &Profile{
		data:     data,
		class:    Signature(be.Uint32(data[offClass:])),
		tags:     make(map[Signature][]byte, count),
		metadata: map[string]string{},
	}
	for i := 0; i < count; i++ {
		entry := data[headerSize+4+i*tagEntrySize:]
		sig := Signature(be.Uint32(entry[0:]))
		off := int(be.Uint32(entry[4:]))
		n := int(be.Uint32(entry[8:]))
		if off < headerSize || n < 8 || off > size-n {
			return nil, fmt.Errorf("%w: tag %s out of bounds", ErrInvalidProfile, sig)
		}
		p.tags[sig] = data[off : off+n]
	}

	if tag, ok := p.tags[MetadataSignature]; ok {
		if meta, err := decodeDict(tag); err == nil {
			p.metadata = meta
		}
	}
	if tag, ok := p.tags[DescSignature]; ok {
		p.description, _ = decodeText(tag)
	}
	if tag, ok := p.tags[VideoCardGammaSignature]; ok {
		p.vcgt, _ = parseVCGT(tag)
	}
	return p, nil
}

// Bytes returns the profile exactly as stored. Callers must not modify it.
func (p *Profile) Bytes() []byte {
	return p.data
}

// ID returns the hex profile ID from the header, or the MD5 of the whole
// profile when the header leaves it zero.
func (p *Profile) ID() string {
	id := p.data[offProfileID : offProfileID+profileIDLen]
	for _, b := range id {
		if b != 0 {
			return hex.EncodeToString(id)
		}
	}
	sum := md5.Sum(p.data)
	return hex.EncodeToString(sum[:])
}

// Class returns the device class signature, e.g. DisplayClassSignature
func (p *Profile) Class() Signature {
	return p.class
}

// Description returns the profile description text, if any
func (p *Profile) Description() string {
	return p.description
}

// Metadata returns the value stored under key in the meta dictionary
func (p *Profile) Metadata(key string) (string, bool) {
	v, ok := p.metadata[key]
	return v, ok
}

// MetadataMap returns a copy of all metadata entries
func (p *Profile) MetadataMap() map[string]string {
	return maps.Clone(p.metadata)
}

// HasTag reports whether the profile carries sig
func (p *Profile) HasTag(sig Signature) bool {
	_, ok := p.tags[sig]
	return ok
}

func decodeUTF16BE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = be.Uint16(b[i*2:])
	}
	return strings.TrimRight(string(utf16.Decode(units)), "\x00")
}

// decodeText reads the first record of an mluc tag, or the ASCII part of a
// v2 textDescriptionType / textType.
func decodeText(tag []byte) (string, error) {
	switch Signature(be.Uint32(tag)) {
	case MultiLocalisedUnicodeSignature:
		if len(tag) < 16 {
			return "", ErrInvalidProfile
		}
		count := be.Uint32(tag[8:])
		recLen := int(be.Uint32(tag[12:]))
		if count == 0 || recLen < 12 || len(tag) < 16+recLen {
			return "", ErrInvalidProfile
		}
		n := int(be.Uint32(tag[20:]))
		off := int(be.Uint32(tag[24:]))
		if off < 0 || n < 0 || off > len(tag)-n {
			return "", ErrInvalidProfile
		}
		return decodeUTF16BE(tag[off : off+n]), nil
	case TextDescriptionSignature:
		if len(tag) < 12 {
			return "", ErrInvalidProfile
		}
		n := int(be.Uint32(tag[8:]))
		if n > len(tag)-12 {
			return "", ErrInvalidProfile
		}
		return strings.TrimRight(string(tag[12:12+n]), "\x00"), nil
	case TextTypeSignature:
		return strings.TrimRight(string(tag[8:]), "\x00"), nil
	}
	return "", ErrInvalidProfile
}

func decodeDict(tag []byte) (map[string]string, error) {
	if len(tag) < 16 || Signature(be.Uint32(tag)) != DictTypeSignature {
		return nil, ErrInvalidProfile
	}
	count := int(be.Uint32(tag[8:]))
	recLen := int(be.Uint32(tag[12:]))
	if recLen < 16 || count > (len(tag)-16)/recLen {
		return nil, ErrInvalidProfile
	}

	str := func(off, n uint32) (string, error) {
		if int(off) > len(tag) || int(n) > len(tag)-int(off) {
			return "", ErrInvalidProfile
		}
		return decodeUTF16BE(tag[off : off+n]), nil
	}

	out := make(map[string]string, count)
	for i := 0; i < count; i++ {
		rec := tag[16+i*recLen:]
		name, err := str(be.Uint32(rec[0:]), be.Uint32(rec[4:]))
		if err != nil {
			return nil, err
		}
		value, err := str(be.Uint32(rec[8:]), be.Uint32(rec[12:]))
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}
