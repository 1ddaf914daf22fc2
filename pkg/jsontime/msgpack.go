package jsontime

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeMsgpack implements msgpack.CustomEncoder, storing the value as
// Unix milliseconds like the JSON form.
func (ep Milli) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt64(time.Time(ep).UnixMilli())
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (ep *Milli) DecodeMsgpack(dec *msgpack.Decoder) error {
	ms, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*ep = Milli(time.UnixMilli(ms))
	return nil
}

var (
	_ msgpack.CustomEncoder = Milli{}
	_ msgpack.CustomDecoder = (*Milli)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder, storing nanoseconds.
func (d Duration) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeInt64(int64(d))
}

// DecodeMsgpack implements msgpack.CustomDecoder.
func (d *Duration) DecodeMsgpack(dec *msgpack.Decoder) error {
	ns, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	*d = Duration(ns)
	return nil
}

var (
	_ msgpack.CustomEncoder = Duration(0)
	_ msgpack.CustomDecoder = (*Duration)(nil)
)
