package idem

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/idemkit/xerrors"
)

// 支持的序列化格式
const (
	SerializerJSON    = "json"
	SerializerMsgpack = "msgpack"
)

// ErrUnsupportedSerializer 不支持的序列化格式
var ErrUnsupportedSerializer = xerrors.New("unsupported serializer type")

// Codec 结果缓存使用的序列化器
type Codec interface {
	Name() string
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return SerializerJSON }

func (jsonCodec) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec) Unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

// msgpackCodec 二进制格式，体积更小，适合结果较大的场景
type msgpackCodec struct{}

func (msgpackCodec) Name() string { return SerializerMsgpack }

func (msgpackCodec) Marshal(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (msgpackCodec) Unmarshal(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

// NewCodec 按名称创建序列化器，空字符串等同于 "json"
func NewCodec(name string) (Codec, error) {
	switch name {
	case SerializerJSON, "":
		return jsonCodec{}, nil
	case SerializerMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, xerrors.Wrapf(ErrUnsupportedSerializer, "idem: %s", name)
	}
}
