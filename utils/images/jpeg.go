// Package images has helpers for re-encoding images put into books.
package images

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// Units of JFIF density fields.
type DpiType uint8

const (
	DpiNoUnits DpiType = iota
	DpiPxPerInch
	DpiPxPerSm
)

var (
	soi  = []byte{0xFF, 0xD8}
	app0 = []byte{0xFF, 0xE0}
	// "JFIF\0" and version 1.02
	jfif = []byte{0x4A, 0x46, 0x49, 0x46, 0x00, 0x01, 0x02}
)

// EnsureJFIFAPP0 inserts JFIF APP0 segment right after SOI when jpeg does not
// start with one. Standard library encoder never writes it and some readers
// use it to find image density.
func EnsureJFIFAPP0(data []byte, units DpiType, xdensity, ydensity uint16) ([]byte, bool, error) {
	if len(data) < 4 {
		return nil, false, errors.New("jpeg too small")
	}
	if !bytes.Equal(data[:2], soi) {
		return nil, false, errors.New("not a jpeg")
	}
	if bytes.Equal(data[2:4], app0) {
		return data, false, nil
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(data)+18))
	buf.Write(soi)
	buf.Write(app0)
	_ = binary.Write(buf, binary.BigEndian, uint16(16)) // segment length
	buf.Write(jfif)
	buf.WriteByte(byte(units))
	_ = binary.Write(buf, binary.BigEndian, xdensity)
	_ = binary.Write(buf, binary.BigEndian, ydensity)
	buf.Write([]byte{0, 0}) // no thumbnail
	buf.Write(data[2:])
	return buf.Bytes(), true, nil
}

// EncodeJPEG encodes image with requested quality making sure result carries
// JFIF header.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	out, _, err := EnsureJFIFAPP0(buf.Bytes(), DpiPxPerInch, 72, 72)
	return out, err
}
