package idem

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// DefaultMetadataKey 幂等键的默认 gRPC metadata 键名
const DefaultMetadataKey = "idempotency-key"

// UnaryServerInterceptor 创建 gRPC 一元服务端拦截器
//
// 作用域为完整方法名，指纹为请求消息确定性序列化后的 SHA-256，
// 响应以 anypb.Any 的形式缓存。handler 的错误原样返回，
// 幂等相关的错误转换为 GRPCCode 对应的状态码。
// 只支持一元 RPC，流式调用不经过该拦截器。
// 响应不是 proto 消息时首次调用照常返回，之后的重放得到 AlreadyExists。
//
// 使用示例:
//
//	s := grpc.NewServer(
//	    grpc.UnaryInterceptor(coord.UnaryServerInterceptor(nil)),
//	)
func (c *Coordinator) UnaryServerInterceptor(table PolicyTable, opts ...InterceptorOption) grpc.UnaryServerInterceptor {
	opt := interceptorOptions{
		metadataKey: DefaultMetadataKey,
	}
	for _, o := range opts {
		o(&opt)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		policy, ok := table.Lookup(info.FullMethod)
		if !ok {
			return handler(ctx, req)
		}

		// metadata 中没有幂等键时直接调用 handler，空值由 Validate 拒绝
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		keys := md.Get(opt.metadataKey)
		if len(keys) == 0 {
			return handler(ctx, req)
		}

		key := NewKey(info.FullMethod, keys[0])
		if msg, ok := req.(proto.Message); ok {
			payload, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "idem: marshal request: %v", err)
			}
			key = key.WithFingerprint(Fingerprint(payload))
		}

		executed := false
		var handlerResp any
		res, err := c.Execute(ctx, key, func(ctx context.Context) (Value, error) {
			executed = true
			resp, err := handler(ctx, req)
			if err != nil {
				return None(), err
			}
			handlerResp = resp

			respBytes, err := encodeGRPCResponse(resp)
			if err != nil {
				// handler 已经成功，缓存 None 阻止重复执行，重放时返回 AlreadyExists
				c.logger.ErrorContext(ctx, "gRPC response cannot be cached",
					clog.Error(err), clog.String("key", key.Identity()))
				return None(), nil
			}
			return Some(respBytes), nil
		}, policy.executeOptions()...)

		if err != nil {
			if executed {
				return nil, err
			}
			c.logRejected(ctx, "idem rejected gRPC call", err, key)
			return nil, status.Error(GRPCCode(err), err.Error())
		}
		if !res.Replayed() {
			return handlerResp, nil
		}

		c.logger.DebugContext(ctx, "idem cache hit for gRPC call",
			clog.String("key", key.Identity()), clog.String("method", info.FullMethod))
		if res.IsNone() {
			return nil, status.Error(codes.AlreadyExists, "idem: request already executed, response is not replayable")
		}
		var cached []byte
		if err := res.Decode(&cached); err != nil {
			return nil, status.Errorf(codes.Internal, "idem: decode cached response: %v", err)
		}
		msg, err := decodeCachedGRPCResponse(cached)
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to decode cached gRPC response",
				clog.Error(err), clog.String("key", key.Identity()))
			return nil, status.Error(codes.Internal, err.Error())
		}
		return msg, nil
	}
}

func encodeGRPCResponse(resp any) ([]byte, error) {
	msg, ok := resp.(proto.Message)
	if !ok {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: response %T is not a proto message", resp)
	}
	anyMsg, err := anypb.New(msg)
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: wrap response")
	}
	return proto.Marshal(anyMsg)
}

func decodeCachedGRPCResponse(cachedResp []byte) (proto.Message, error) {
	var anyMsg anypb.Any
	if err := proto.Unmarshal(cachedResp, &anyMsg); err != nil {
		return nil, xerrors.Wrap(err, "idem: unmarshal cached any")
	}
	msg, err := anypb.UnmarshalNew(&anyMsg, proto.UnmarshalOptions{})
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: unmarshal cached response")
	}
	return msg, nil
}
