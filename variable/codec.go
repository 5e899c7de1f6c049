package variable

import "github.com/tinylib/msgp/msgp"

// MarshalMsg and UnmarshalMsg give Variable a msgp.Marshaler/Unmarshaler
// implementation hand-written against the low-level msgp append/read
// helpers, rather than run through the msgp code generator — the wire
// shape here is small and stable enough that generation would be
// overkill. This is what rpc.Client implementations serialize before
// handing a payload to the transport.
func (v *Variable) MarshalMsg(b []byte) ([]byte, error) {
	fields := 2 // name, kind
	if v.Dense != nil {
		fields += 3
	} else {
		fields += 4
	}
	o := msgp.AppendMapHeader(b, uint32(fields))
	o = msgp.AppendString(o, "name")
	o = msgp.AppendString(o, v.Name)

	o = msgp.AppendString(o, "kind")
	if v.Dense != nil {
		o = msgp.AppendString(o, "dense")
		o = msgp.AppendString(o, "shape")
		o = msgp.AppendInt64Array(o, v.Dense.Shape)
		o = msgp.AppendString(o, "dtype")
		o = msgp.AppendInt(o, int(v.Dense.DType))
		if v.Dense.DType == Int64 {
			o = msgp.AppendString(o, "int64")
			o = msgp.AppendInt64Array(o, v.Dense.Int64)
		} else {
			o = msgp.AppendString(o, "data")
			o = msgp.AppendFloat32Array(o, v.Dense.Data)
		}
		return o, nil
	}

	o = msgp.AppendString(o, "sparse")
	o = msgp.AppendString(o, "height")
	o = msgp.AppendInt64(o, v.Sparse.Height)
	o = msgp.AppendString(o, "width")
	o = msgp.AppendInt(o, v.Sparse.Width)
	o = msgp.AppendString(o, "rows")
	o = msgp.AppendInt64Array(o, v.Sparse.Rows)
	o = msgp.AppendString(o, "values")
	o = msgp.AppendArrayHeader(o, uint32(len(v.Sparse.Values)))
	for _, row := range v.Sparse.Values {
		o = msgp.AppendFloat32Array(o, row)
	}
	return o, nil
}

func (v *Variable) UnmarshalMsg(b []byte) ([]byte, error) {
	n, o, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	var kind string
	for i := uint32(0); i < n; i++ {
		var key string
		key, o, err = msgp.ReadStringBytes(o)
		if err != nil {
			return b, err
		}
		switch key {
		case "name":
			v.Name, o, err = msgp.ReadStringBytes(o)
		case "kind":
			kind, o, err = msgp.ReadStringBytes(o)
		case "shape":
			if v.Dense == nil {
				v.Dense = &Dense{}
			}
			v.Dense.Shape, o, err = msgp.ReadInt64ArrayBytes(o, nil)
		case "dtype":
			if v.Dense == nil {
				v.Dense = &Dense{}
			}
			var d int
			d, o, err = msgp.ReadIntBytes(o)
			v.Dense.DType = DType(d)
		case "data":
			if v.Dense == nil {
				v.Dense = &Dense{}
			}
			v.Dense.Data, o, err = msgp.ReadFloat32ArrayBytes(o, nil)
		case "int64":
			if v.Dense == nil {
				v.Dense = &Dense{}
			}
			v.Dense.Int64, o, err = msgp.ReadInt64ArrayBytes(o, nil)
		case "height":
			if v.Sparse == nil {
				v.Sparse = &Sparse{}
			}
			v.Sparse.Height, o, err = msgp.ReadInt64Bytes(o)
		case "width":
			if v.Sparse == nil {
				v.Sparse = &Sparse{}
			}
			var w int
			w, o, err = msgp.ReadIntBytes(o)
			v.Sparse.Width = w
		case "rows":
			if v.Sparse == nil {
				v.Sparse = &Sparse{}
			}
			v.Sparse.Rows, o, err = msgp.ReadInt64ArrayBytes(o, nil)
		case "values":
			if v.Sparse == nil {
				v.Sparse = &Sparse{}
			}
			var cnt uint32
			cnt, o, err = msgp.ReadArrayHeaderBytes(o)
			if err != nil {
				return b, err
			}
			v.Sparse.Values = make([][]float32, cnt)
			for j := uint32(0); j < cnt; j++ {
				v.Sparse.Values[j], o, err = msgp.ReadFloat32ArrayBytes(o, nil)
				if err != nil {
					return b, err
				}
			}
		default:
			o, err = msgp.Skip(o)
		}
		if err != nil {
			return b, err
		}
	}
	_ = kind
	return o, nil
}
