package icc

import (
	"fmt"
	"time"

	"github.com/1broseidon/iccsync/internal/edid"
)

const (
	// DefaultGamma is used when the EDID leaves the transfer gamma undefined
	DefaultGamma = 2.2

	copyrightText      = "This profile is free of known copyright restrictions."
	unknownDescription = "Unknown display"
)

// Options identify the program that synthesized a profile
type Options struct {
	Product string
	Binary  string
	Version string
	// Now stamps the header; time.Now when nil
	Now func() time.Time
}

// FromIdentity synthesizes a display profile from decoded EDID colorimetry.
// Identities without usable primaries return an error wrapping
// ErrUnusableColorimetry.
func FromIdentity(id edid.Identity, opts Options) (*Profile, error) {
	if !id.Valid {
		return nil, fmt.Errorf("%w: EDID %s was not decoded", ErrUnusableColorimetry, id.ContentID)
	}

	rgb, chad, err := colorants(id)
	if err != nil {
		return nil, err
	}

	gamma := id.Gamma
	if !id.GammaDefined() {
		gamma = DefaultGamma
	}
	trc, err := encodeGammaCurve(gamma)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	description := unknownDescription
	if id.HasModel {
		description = id.Model
	}

	b := newDisplayBuilder(now())
	b.add(DescSignature, encodeMLUC(description))
	b.add(CopyrightSignature, encodeMLUC(copyrightText))
	b.add(DeviceModelDescriptionSignature, encodeMLUC(id.Model))
	if id.HasVendor {
		b.add(DeviceManufacturerDescriptionSignature, encodeMLUC(id.Vendor))
	}
	b.add(MediaWhitePointSignature, encodeXYZ(pcsIlluminant))
	b.add(ChromaticAdaptationSignature, encodeMatrix(chad))
	b.add(RedColorantSignature, encodeXYZ([3]float64{rgb[0][0], rgb[1][0], rgb[2][0]}))
	b.add(GreenColorantSignature, encodeXYZ([3]float64{rgb[0][1], rgb[1][1], rgb[2][1]}))
	b.add(BlueColorantSignature, encodeXYZ([3]float64{rgb[0][2], rgb[1][2], rgb[2][2]}))
	b.add(RedTRCSignature, trc)
	b.add(GreenTRCSignature, trc)
	b.add(BlueTRCSignature, trc)
	b.add(MetadataSignature, encodeDict(metadataFor(id, opts)))

	return Parse(b.encode())
}

func metadataFor(id edid.Identity, opts Options) map[string]string {
	meta := map[string]string{
		MetaEDIDMD5:    id.ContentID,
		MetaEDIDModel:  id.Model,
		MetaEDIDMnft:   id.ManufacturerCode,
		MetaEDIDVendor: id.Vendor,
		MetaDataSource: DataSourceEDID,
	}
	if id.HasSerial {
		meta[MetaEDIDSerial] = id.Serial
	}
	if opts.Product != "" {
		meta[MetaProduct] = opts.Product
	}
	if opts.Binary != "" {
		meta[MetaBinary] = opts.Binary
	}
	if opts.Version != "" {
		meta[MetaVersion] = opts.Version
	}
	return meta
}
