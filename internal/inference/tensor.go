package inference

import (
	"fmt"

	"github.com/danmuck/postproc/internal/document"
	"github.com/danmuck/postproc/internal/transcode"
)

// DataType is the runtime's tensor element type code.
type DataType int32

const (
	DataTypeFloat  DataType = 1
	DataTypeUint8  DataType = 2
	DataTypeInt8   DataType = 3
	DataTypeUint16 DataType = 4
	DataTypeInt16  DataType = 5
	DataTypeInt32  DataType = 6
	DataTypeInt64  DataType = 7
	DataTypeString DataType = 8
	DataTypeBool   DataType = 9
	DataTypeDouble DataType = 11
	DataTypeUint32 DataType = 12
	DataTypeUint64 DataType = 13
)

var dataTypeNames = map[DataType]string{
	DataTypeFloat:  "float",
	DataTypeUint8:  "uint8",
	DataTypeInt8:   "int8",
	DataTypeUint16: "uint16",
	DataTypeInt16:  "int16",
	DataTypeInt32:  "int32",
	DataTypeInt64:  "int64",
	DataTypeString: "string",
	DataTypeBool:   "bool",
	DataTypeDouble: "double",
	DataTypeUint32: "uint32",
	DataTypeUint64: "uint64",
}

func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("datatype(%d)", int32(d))
}

// TensorHeader describes an image tensor held in shared memory. It arrives
// as the secondary message of a two-message exchange.
type TensorHeader struct {
	SHMID    uint64
	Width    uint64
	Height   uint64
	Channels uint64
}

// Size is the tensor byte count for 8-bit channels.
func (h TensorHeader) Size() uint64 {
	return h.Width * h.Height * h.Channels
}

func ReadTensorHeader(v document.Value) (TensorHeader, error) {
	var h TensorHeader
	fields := []struct {
		key string
		dst *uint64
	}{
		{"SHMID", &h.SHMID},
		{"Width", &h.Width},
		{"Height", &h.Height},
		{"Channels", &h.Channels},
	}
	for _, f := range fields {
		n, err := v.Get(f.key)
		if err != nil {
			return TensorHeader{}, fmt.Errorf("tensor header: %w", err)
		}
		u, err := n.Uint()
		if err != nil {
			return TensorHeader{}, fmt.Errorf("tensor header %s: %w", f.key, err)
		}
		*f.dst = u
	}
	return h, nil
}

const (
	KeyOutputs         = "Outputs"
	KeyOutputRanks     = "OutputRanks"
	KeyOutputShapes    = "OutputShapes"
	KeyOutputDataTypes = "OutputDataTypes"
)

// Output is one raw output tensor of the model.
type Output struct {
	Name     string
	Data     []byte
	Rank     int32
	Shape    []int64
	DataType DataType
}

// ReadOutputs reads the raw tensor-output layout: an Outputs map of
// name to binary plus parallel rank, shape and data type arrays.
func ReadOutputs(root document.Value) ([]Output, error) {
	outputs, err := root.Get(KeyOutputs)
	if err != nil {
		return nil, err
	}
	if outputs.Kind() != document.KindMap {
		return nil, fmt.Errorf("%w: %s kind=%s", ErrSchema, KeyOutputs, outputs.Kind())
	}
	ranks, err := root.Get(KeyOutputRanks)
	if err != nil {
		return nil, err
	}
	shapes, err := root.Get(KeyOutputShapes)
	if err != nil {
		return nil, err
	}
	types, err := root.Get(KeyOutputDataTypes)
	if err != nil {
		return nil, err
	}

	n := outputs.Len()
	if ranks.Len() < n || shapes.Len() < n || types.Len() < n {
		return nil, fmt.Errorf("%w: outputs=%d ranks=%d shapes=%d types=%d",
			ErrSchema, n, ranks.Len(), shapes.Len(), types.Len())
	}

	out := make([]Output, 0, n)
	for i, e := range outputs.Entries() {
		name, err := e.Key.Str()
		if err != nil {
			return nil, fmt.Errorf("%w: output %d name: %w", ErrSchema, i, err)
		}
		data, err := e.Value.Bytes()
		if err != nil {
			return nil, fmt.Errorf("%w: output %q data: %w", ErrSchema, name, err)
		}
		rank, err := ranks.Index(i).Int()
		if err != nil {
			return nil, fmt.Errorf("%w: output %q rank: %w", ErrSchema, name, err)
		}
		shapeNode := shapes.Index(i)
		if rank < 0 || int64(shapeNode.Len()) < rank {
			return nil, fmt.Errorf("%w: output %q shape has %d dims, rank %d", ErrSchema, name, shapeNode.Len(), rank)
		}
		shape := make([]int64, rank)
		for d := range shape {
			if shape[d], err = shapeNode.Index(d).Int(); err != nil {
				return nil, fmt.Errorf("%w: output %q shape[%d]: %w", ErrSchema, name, d, err)
			}
		}
		dt, err := types.Index(i).Int()
		if err != nil {
			return nil, fmt.Errorf("%w: output %q data type: %w", ErrSchema, name, err)
		}
		out = append(out, Output{
			Name:     name,
			Data:     data,
			Rank:     int32(rank),
			Shape:    shape,
			DataType: DataType(dt),
		})
	}
	return out, nil
}

var outputKeys = transcode.KeySet(KeyOutputs, KeyOutputRanks, KeyOutputShapes, KeyOutputDataTypes)

// WriteOutputs copies root without the tensor-output keys and appends
// them rebuilt from outputs.
func WriteOutputs(root document.Value, outputs []Output, b *document.Builder) error {
	if err := transcode.CopyMapExcluding(root, b, outputKeys); err != nil {
		return err
	}

	b.String(KeyOutputs)
	b.StartMap(len(outputs))
	for _, o := range outputs {
		b.String(o.Name)
		b.Binary(o.Data)
	}
	b.FinishMap()

	b.String(KeyOutputRanks)
	b.StartArray(len(outputs))
	for _, o := range outputs {
		b.Int(int64(o.Rank))
	}
	b.FinishArray()

	b.String(KeyOutputShapes)
	b.StartArray(len(outputs))
	for _, o := range outputs {
		b.StartArray(len(o.Shape))
		for _, d := range o.Shape {
			b.Int(d)
		}
		b.FinishArray()
	}
	b.FinishArray()

	b.String(KeyOutputDataTypes)
	b.StartArray(len(outputs))
	for _, o := range outputs {
		b.Int(int64(o.DataType))
	}
	b.FinishArray()

	b.CompleteMap()
	return b.Err()
}
