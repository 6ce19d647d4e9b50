package icc

// Signature is a four-character ICC code stored big-endian
type Signature uint32

const (
	ProfileFileSignature  Signature = 0x61637370 // 'acsp'
	DisplayClassSignature Signature = 0x6d6e7472 // 'mntr'
	RGBSpaceSignature     Signature = 0x52474220 // 'RGB '
	XYZSpaceSignature     Signature = 0x58595a20 // 'XYZ '
	CreatorSignature      Signature = 0x4953594e // 'ISYN'

	// tag signatures
	DescSignature                          Signature = 0x64657363 // 'desc'
	CopyrightSignature                     Signature = 0x63707274 // 'cprt'
	DeviceManufacturerDescriptionSignature Signature = 0x646d6e64 // 'dmnd'
	DeviceModelDescriptionSignature        Signature = 0x646d6464 // 'dmdd'
	MediaWhitePointSignature               Signature = 0x77747074 // 'wtpt'
	ChromaticAdaptationSignature           Signature = 0x63686164 // 'chad'
	RedColorantSignature                   Signature = 0x7258595a // 'rXYZ'
	GreenColorantSignature                 Signature = 0x6758595a // 'gXYZ'
	BlueColorantSignature                  Signature = 0x6258595a // 'bXYZ'
	RedTRCSignature                        Signature = 0x72545243 // 'rTRC'
	GreenTRCSignature                      Signature = 0x67545243 // 'gTRC'
	BlueTRCSignature                       Signature = 0x62545243 // 'bTRC'
	MetadataSignature                      Signature = 0x6d657461 // 'meta'
	VideoCardGammaSignature                Signature = 0x76636774 // 'vcgt'

	// tag type signatures
	MultiLocalisedUnicodeSignature Signature = 0x6d6c7563 // 'mluc'
	TextDescriptionSignature       Signature = 0x64657363 // 'desc' (v2)
	TextTypeSignature              Signature = 0x74657874 // 'text'
	XYZTypeSignature               Signature = 0x58595a20 // 'XYZ '
	CurveTypeSignature             Signature = 0x63757276 // 'curv'
	S15Fixed16ArraySignature       Signature = 0x73663332 // 'sf32'
	DictTypeSignature              Signature = 0x64696374 // 'dict'
)

func maskNull(b byte) byte {
	switch b {
	case 0:
		return ' '
	default:
		return b
	}
}

func (s Signature) String() string {
	v := []byte{
		maskNull(byte((s >> 24) & 0xff)),
		maskNull(byte((s >> 16) & 0xff)),
		maskNull(byte((s >> 8) & 0xff)),
		maskNull(byte(s & 0xff)),
	}
	return "'" + string(v) + "'"
}
