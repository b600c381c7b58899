package convert

import (
	"bytes"
	"encoding/binary"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is the EXIF/TIFF orientation tag value (1-8).
type Orientation int

const (
	OrientationNormal     Orientation = 1
	OrientationFlipH      Orientation = 2
	OrientationRotate180  Orientation = 3
	OrientationFlipV      Orientation = 4
	OrientationTranspose  Orientation = 5
	OrientationRotate90   Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRotate270  Orientation = 8
)

// SwapsAxes reports whether the oriented image has width and height
// exchanged relative to the stored pixels.
func (o Orientation) SwapsAxes() bool {
	return o >= OrientationTranspose && o <= OrientationRotate270
}

// Apply returns img as it should be presented.
func (o Orientation) Apply(img image.Image) image.Image {
	switch o {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate90:
		// 90° clockwise to display.
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

type Metadata struct {
	Orientation Orientation
	DpiX        int
	DpiY        int
}

const (
	resolutionUnitInch = 2
	resolutionUnitCm   = 3
	cmPerInch          = 2.54
	metersPerInch      = 0.0254
)

func readMetadata(mime string, data []byte) Metadata {
	meta := Metadata{Orientation: OrientationNormal}
	switch mime {
	case "image/jpeg", "image/tiff":
		readExif(data, &meta)
		if meta.DpiX == 0 && mime == "image/jpeg" {
			meta.DpiX, meta.DpiY = jfifDensity(data)
		}
	case "image/png":
		meta.DpiX, meta.DpiY = pngDensity(data)
	case "image/bmp":
		meta.DpiX, meta.DpiY = bmpDensity(data)
	}
	if meta.DpiX <= 0 || meta.DpiY <= 0 {
		meta.DpiX, meta.DpiY = FallbackDPI, FallbackDPI
	}
	return meta
}

func readExif(data []byte, meta *Metadata) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil || x == nil {
		return
	}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			meta.Orientation = Orientation(v)
		}
	}

	scale := 1.0
	if tag, err := x.Get(exif.ResolutionUnit); err == nil {
		if v, err := tag.Int(0); err == nil && v == resolutionUnitCm {
			scale = cmPerInch
		}
	}
	meta.DpiX = rational(x, exif.XResolution, scale)
	meta.DpiY = rational(x, exif.YResolution, scale)
}

func rational(x *exif.Exif, field exif.FieldName, scale float64) int {
	tag, err := x.Get(field)
	if err != nil {
		return 0
	}
	num, denom, err := tag.Rat2(0)
	if err != nil || denom == 0 {
		return 0
	}
	return int(math.Round(float64(num) / float64(denom) * scale))
}

// jfifDensity reads the density fields of a JFIF APP0 segment.
func jfifDensity(data []byte) (int, int) {
	if len(data) < 20 || data[0] != 0xFF || data[1] != 0xD8 || data[2] != 0xFF || data[3] != 0xE0 {
		return 0, 0
	}
	if string(data[6:11]) != "JFIF\x00" {
		return 0, 0
	}
	x := int(binary.BigEndian.Uint16(data[14:16]))
	y := int(binary.BigEndian.Uint16(data[16:18]))
	switch data[13] {
	case 1:
		return x, y
	case 2:
		return int(math.Round(float64(x) * cmPerInch)), int(math.Round(float64(y) * cmPerInch))
	}
	return 0, 0
}

// pngDensity reads the pHYs chunk, if present before the image data.
func pngDensity(data []byte) (int, int) {
	const sigLen = 8
	for off := sigLen; off+12 <= len(data); {
		length := int(binary.BigEndian.Uint32(data[off:]))
		kind := string(data[off+4 : off+8])
		body := off + 8
		if kind == "IDAT" || body+length > len(data) {
			break
		}
		if kind == "pHYs" && length == 9 && data[body+8] == 1 {
			ppmX := binary.BigEndian.Uint32(data[body:])
			ppmY := binary.BigEndian.Uint32(data[body+4:])
			return perMeterToDPI(ppmX), perMeterToDPI(ppmY)
		}
		off = body + length + 4
	}
	return 0, 0
}

// bmpDensity reads the pixels-per-meter fields of a BITMAPINFOHEADER.
func bmpDensity(data []byte) (int, int) {
	if len(data) < 46 {
		return 0, 0
	}
	ppmX := binary.LittleEndian.Uint32(data[38:])
	ppmY := binary.LittleEndian.Uint32(data[42:])
	return perMeterToDPI(ppmX), perMeterToDPI(ppmY)
}

func perMeterToDPI(ppm uint32) int {
	return int(math.Round(float64(ppm) * metersPerInch))
}
