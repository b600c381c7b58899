package convert

import (
	"encoding/binary"
	"errors"
	"math"
)

// withJFIF inserts a JFIF APP0 segment carrying the given density right after
// the SOI marker. image/jpeg writes no APP0 of its own.
func withJFIF(jpg []byte, dpiX, dpiY int) ([]byte, error) {
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		return nil, errors.New("encoder output has no SOI marker")
	}
	app0 := []byte{
		0xFF, 0xE0,
		0x00, 0x10,
		'J', 'F', 'I', 'F', 0x00,
		0x01, 0x02,
		0x01, // dots per inch
		0, 0, 0, 0,
		0x00, 0x00,
	}
	binary.BigEndian.PutUint16(app0[12:], clampDensity(dpiX))
	binary.BigEndian.PutUint16(app0[14:], clampDensity(dpiY))

	out := make([]byte, 0, len(jpg)+len(app0))
	out = append(out, jpg[:2]...)
	out = append(out, app0...)
	return append(out, jpg[2:]...), nil
}

func clampDensity(dpi int) uint16 {
	if dpi <= 0 {
		dpi = FallbackDPI
	}
	return uint16(min(dpi, math.MaxUint16))
}
