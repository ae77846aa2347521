package query

import (
	"github.com/alibaba/proxima-sub000/internal/errcode"
	"github.com/alibaba/proxima-sub000/internal/value"
)

// transformFeatures produces the raw feature bytes the kernel expects for
// columnType, from either the pre-encoded byte buffer or the JSON matrix,
// converting fp32<->fp16 when the declared data type doesn't match the
// column's schema type.
func transformFeatures(p *KNNParam, columnType value.DataType) ([]byte, error) {
	if p.Features != nil {
		expected := int(p.BatchCount) * int(p.Dimension) * p.DataType.ElementSize()
		if len(p.Features) != expected {
			return nil, errcode.Newf(errcode.InvalidVectorFormat, "features length %d, expected %d", len(p.Features), expected)
		}
		if p.DataType == columnType {
			return p.Features, nil
		}
		return convertFeatures(p.Features, p.DataType, columnType)
	}

	if p.Matrix != nil {
		if uint32(len(p.Matrix)) != p.BatchCount {
			return nil, errcode.Newf(errcode.InvalidVectorFormat, "matrix has %d rows, batch_count is %d", len(p.Matrix), p.BatchCount)
		}
		return encodeMatrix(p.Matrix, int(p.Dimension), columnType)
	}

	return nil, errcode.New(errcode.InvalidVectorFormat, "request carries neither features nor matrix")
}

// convertFeatures converts a raw feature buffer from 'from' to 'to',
// supporting only the fp32<->fp16 pair; any other mismatch is rejected
// with MismatchedDataType.
func convertFeatures(raw []byte, from, to value.DataType) ([]byte, error) {
	switch {
	case from == value.DataTypeFP32 && to == value.DataTypeFP16:
		floats, err := value.VectorFP32(raw)
		if err != nil {
			return nil, errcode.Wrap(errcode.InvalidVectorFormat, err, "decode fp32 features")
		}
		return value.EncodeFP16(floats), nil
	case from == value.DataTypeFP16 && to == value.DataTypeFP32:
		floats, err := value.VectorFP16(raw)
		if err != nil {
			return nil, errcode.Wrap(errcode.InvalidVectorFormat, err, "decode fp16 features")
		}
		return value.EncodeFP32(floats), nil
	default:
		return nil, errcode.Newf(errcode.MismatchedDataType, "cannot convert %v to %v", from, to)
	}
}

// encodeMatrix packs per-query float64 rows into columnType's byte layout.
// Only the floating-point element types are supported for matrix input;
// other column types require the pre-encoded Features form.
func encodeMatrix(rows [][]float64, dim int, columnType value.DataType) ([]byte, error) {
	var out []byte
	for _, row := range rows {
		if len(row) != dim {
			return nil, errcode.Newf(errcode.InvalidVectorFormat, "matrix row has %d elements, dimension is %d", len(row), dim)
		}
		switch columnType {
		case value.DataTypeFP32:
			floats := make([]float32, dim)
			for i, f := range row {
				floats[i] = float32(f)
			}
			out = append(out, value.EncodeFP32(floats)...)
		case value.DataTypeFP16:
			floats := make([]float32, dim)
			for i, f := range row {
				floats[i] = float32(f)
			}
			out = append(out, value.EncodeFP16(floats)...)
		default:
			return nil, errcode.Newf(errcode.InvalidVectorFormat, "matrix input unsupported for column type %v", columnType)
		}
	}
	return out, nil
}
