// Package matslice implements the MAT Slicer (spec §4.8): version sniffing,
// a legacy MAT5 numeric-array reader, coordinate-name guessing, and
// N-dimensional filtered slicing. No MAT-file library exists anywhere in
// the retrieved example corpus, so the binary reader is a small,
// numeric-array-only decoder built on stdlib encoding/binary and
// compress/zlib rather than a general-purpose MAT implementation.
package matslice

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/flightdv/corepipeline/engine/domain"
)

// v73Marker is scanned for in the first 128 bytes of a MAT file to decide
// between the legacy binary reader and the HDF5-backed v7.3 format.
const v73Marker = "MATLAB 7.3 MAT-file"

// MAT5 data type codes (miXXX) used by the subset of the format this
// reader supports.
const (
	miInt8       = 1
	miUInt8      = 2
	miInt16      = 3
	miUInt16     = 4
	miInt32      = 5
	miUInt32     = 6
	miSingle     = 7
	miDouble     = 9
	miInt64      = 12
	miUInt64     = 13
	miMatrix     = 14
	miCompressed = 15
	miUTF8       = 16
)

// MAT5 array class codes (mxXXX_CLASS).
const (
	mxCell   = 1
	mxStruct = 2
	mxObject = 3
	mxChar   = 4
	mxSparse = 5
	mxDouble = 6
	mxSingle = 7
	mxInt8   = 8
	mxUInt8  = 9
	mxInt16  = 10
	mxUInt16 = 11
	mxInt32  = 12
	mxUInt32 = 13
	mxInt64  = 14
	mxUInt64 = 15
)

var numericClassDtype = map[byte]string{
	mxDouble: "double", mxSingle: "single",
	mxInt8: "int8", mxUInt8: "uint8", mxInt16: "int16", mxUInt16: "uint16",
	mxInt32: "int32", mxUInt32: "uint32", mxInt64: "int64", mxUInt64: "uint64",
}

// variable is one top-level MAT5 array, decoded enough to report its
// index entry and (for numeric arrays) its flattened values.
type variable struct {
	Name   string
	Shape  []int
	Class  byte
	Kind   string
	Dtype  string
	Values []float64 // populated only for numeric_array kind
}

// DetectVersion sniffs the first 128 bytes of raw for the v7.3 HDF5
// marker; "legacy" otherwise.
func DetectVersion(raw []byte) string {
	n := len(raw)
	if n > 128 {
		n = 128
	}
	if strings.Contains(string(raw[:n]), v73Marker) {
		return "v7.3"
	}
	return "legacy"
}

// readVariables walks every top-level data element in a legacy MAT5
// stream, decoding miMATRIX elements (transparently unwrapping
// miCOMPRESSED wrappers) into variable records.
func readVariables(raw []byte) ([]variable, error) {
	if len(raw) < 128 {
		return nil, fmt.Errorf("%w: mat5: file too short", domain.ErrReadError)
	}
	r := bytes.NewReader(raw[128:])

	var vars []variable
	for r.Len() > 0 {
		dataType, payload, err := readElement(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: mat5: %v", domain.ErrReadError, err)
		}
		if dataType == miCompressed {
			inflated, err := inflate(payload)
			if err != nil {
				return nil, fmt.Errorf("%w: mat5: inflate: %v", domain.ErrReadError, err)
			}
			dataType, payload, err = readElement(bytes.NewReader(inflated))
			if err != nil {
				return nil, fmt.Errorf("%w: mat5: compressed element: %v", domain.ErrReadError, err)
			}
		}
		if dataType != miMatrix {
			continue
		}
		v, err := decodeMatrix(payload)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, nil
}

// readElement reads one tag + payload (with 8-byte-boundary padding
// already consumed), handling the small-data-element encoding where the
// type and a byte count under 5 share the first 4-byte word with the data
// packed into the following 4 bytes.
func readElement(r *bytes.Reader) (dataType uint32, payload []byte, err error) {
	var word uint32
	if err := binary.Read(r, binary.LittleEndian, &word); err != nil {
		return 0, nil, err
	}
	if (word >> 16) != 0 {
		// Small data element: type in low 16 bits, size in high 16 bits,
		// data packed into the next 4 bytes (no separate size field).
		dataType = word & 0xFFFF
		size := (word >> 16) & 0xFFFF
		buf := make([]byte, 4)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, nil, err
		}
		return dataType, buf[:size], nil
	}
	dataType = word
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return 0, nil, err
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, err
	}
	if pad := (8 - size%8) % 8; pad != 0 {
		if _, err := r.Seek(int64(pad), io.SeekCurrent); err != nil {
			return 0, nil, err
		}
	}
	return dataType, buf, nil
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// decodeMatrix parses one miMATRIX payload: array flags, dimensions,
// name, and (for numeric classes) the real-part data.
func decodeMatrix(payload []byte) (variable, error) {
	r := bytes.NewReader(payload)

	flagsType, flagsData, err := readElement(r)
	if err != nil || flagsType != miUInt32 || len(flagsData) < 8 {
		return variable{}, fmt.Errorf("%w: mat5: bad array flags", domain.ErrReadError)
	}
	class := flagsData[0]

	dimType, dimData, err := readElement(r)
	if err != nil || dimType != miInt32 {
		return variable{}, fmt.Errorf("%w: mat5: bad dimensions", domain.ErrReadError)
	}
	shape := make([]int, len(dimData)/4)
	for i := range shape {
		shape[i] = int(int32(binary.LittleEndian.Uint32(dimData[i*4:])))
	}

	_, nameData, err := readElement(r)
	if err != nil {
		return variable{}, fmt.Errorf("%w: mat5: bad array name", domain.ErrReadError)
	}
	name := string(nameData)

	dtype, ok := numericClassDtype[class]
	if !ok {
		kind := "unsupported"
		switch class {
		case mxCell:
			kind = "cell"
		case mxStruct, mxObject:
			kind = "struct"
		case mxChar:
			kind = "unsupported"
		}
		return variable{Name: name, Shape: shape, Class: class, Kind: kind, Dtype: classDtypeName(class)}, nil
	}

	realType, realData, err := readElement(r)
	if err != nil {
		return variable{}, fmt.Errorf("%w: mat5: bad real part for %s", domain.ErrReadError, name)
	}
	values, err := decodeNumeric(realType, realData)
	if err != nil {
		return variable{}, err
	}

	return variable{Name: name, Shape: shape, Class: class, Kind: "numeric_array", Dtype: dtype, Values: values}, nil
}

func classDtypeName(class byte) string {
	switch class {
	case mxCell:
		return "cell"
	case mxStruct:
		return "struct"
	case mxObject:
		return "object"
	case mxChar:
		return "char"
	case mxSparse:
		return "sparse"
	default:
		return "unknown"
	}
}

// decodeNumeric converts a raw miXXX payload into float64 values.
func decodeNumeric(dataType uint32, data []byte) ([]float64, error) {
	switch dataType {
	case miDouble:
		return bytesToFloat64(data, 8, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}), nil
	case miSingle:
		return bytesToFloat64(data, 4, func(b []byte) float64 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}), nil
	case miInt8:
		return bytesToFloat64(data, 1, func(b []byte) float64 { return float64(int8(b[0])) }), nil
	case miUInt8:
		return bytesToFloat64(data, 1, func(b []byte) float64 { return float64(b[0]) }), nil
	case miInt16:
		return bytesToFloat64(data, 2, func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) }), nil
	case miUInt16:
		return bytesToFloat64(data, 2, func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }), nil
	case miInt32:
		return bytesToFloat64(data, 4, func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) }), nil
	case miUInt32:
		return bytesToFloat64(data, 4, func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }), nil
	case miInt64:
		return bytesToFloat64(data, 8, func(b []byte) float64 { return float64(int64(binary.LittleEndian.Uint64(b))) }), nil
	case miUInt64:
		return bytesToFloat64(data, 8, func(b []byte) float64 { return float64(binary.LittleEndian.Uint64(b)) }), nil
	default:
		return nil, fmt.Errorf("%w: mat5: unsupported numeric element type %d", domain.ErrReadError, dataType)
	}
}

func bytesToFloat64(data []byte, width int, conv func([]byte) float64) []float64 {
	n := len(data) / width
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = conv(data[i*width : (i+1)*width])
	}
	return out
}
