package rpc

import (
	"context"
	"time"

	"github.com/paramfabric/communicator/cmn"
	"github.com/paramfabric/communicator/commctx"
	"github.com/paramfabric/communicator/variable"
	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// compressThreshold is the payload size above which a dense send is lz4
// compressed before going on the wire, mirroring the cluster code's
// Extra.Compression knob on its intra-cluster transport streams.
const compressThreshold = 4096

// FasthttpClient is the one concrete, non-opaque wire implementation of
// Client: every shard of a VariableContext is a plain "host:port" that
// this client dials over HTTP, one fasthttp request per shard per call.
type FasthttpClient struct {
	hc *fasthttp.Client
}

func NewFasthttpClient() *FasthttpClient {
	return &FasthttpClient{hc: &fasthttp.Client{
		MaxConnsPerHost: 64,
	}}
}

func (c *FasthttpClient) post(ctx context.Context, endpoint, path string, body []byte) (Status, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI("http://" + endpoint + path)
	if len(body) > compressThreshold {
		compressed := make([]byte, lz4.CompressBlockBound(len(body)))
		n, err := lz4.CompressBlock(body, compressed, nil)
		if err == nil && n > 0 {
			req.Header.Set("X-Compression", "lz4")
			req.SetBody(compressed[:n])
		} else {
			req.SetBody(body)
		}
	} else {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	var err error
	if ok {
		err = c.hc.DoDeadline(req, resp, deadline)
	} else {
		err = c.hc.Do(req, resp)
	}
	if err != nil {
		return StatusOK, nil, cmn.NewErrRPC(endpoint, -1, err)
	}
	code := resp.StatusCode()
	if code != fasthttp.StatusOK {
		return Status(code), nil, cmn.NewErrRPC(endpoint, int32(code), errors.New(fasthttp.StatusMessage(code)))
	}
	out := append([]byte(nil), resp.Body()...)
	return StatusOK, out, nil
}

func (c *FasthttpClient) AsyncSend(ctx context.Context, vctx *commctx.VariableContext, scope *variable.Scope, timeout time.Duration) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		v, err := scope.Get(vctx.Name)
		if err != nil {
			return StatusOK, err
		}
		body, err := v.MarshalMsg(nil)
		if err != nil {
			return StatusOK, err
		}
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var futures []Future
		for i, shard := range vctx.ShardNames {
			ep := vctx.Endpoints[i]
			futures = append(futures, c.sendOne(cctx, ep, "/send/"+shard, body))
		}
		return StatusOK, WaitAll(cctx, futures)
	})
}

func (c *FasthttpClient) sendOne(ctx context.Context, endpoint, path string, body []byte) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		st, _, err := c.post(ctx, endpoint, path, body)
		return st, err
	})
}

func (c *FasthttpClient) ParameterRecv(ctx context.Context, vctx *commctx.VariableContext, scope *variable.Scope) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		for i, shard := range vctx.ShardNames {
			ep := vctx.Endpoints[i]
			st, body, err := c.post(ctx, ep, "/recv/"+shard, nil)
			if err != nil {
				return st, err
			}
			v := &variable.Variable{}
			if _, err := v.UnmarshalMsg(body); err != nil {
				return st, err
			}
			scope.SetAs(vctx.Name, v)
		}
		return StatusOK, nil
	})
}

func (c *FasthttpClient) ParameterSend(ctx context.Context, vctx *commctx.VariableContext, scope *variable.Scope) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		v, err := scope.Get(vctx.Name)
		if err != nil {
			return StatusOK, err
		}
		body, err := v.MarshalMsg(nil)
		if err != nil {
			return StatusOK, err
		}
		var futures []Future
		for i, shard := range vctx.ShardNames {
			futures = append(futures, c.sendOne(ctx, vctx.Endpoints[i], "/psend/"+shard, body))
		}
		return StatusOK, WaitAll(ctx, futures)
	})
}

func (c *FasthttpClient) AsyncSendVar(ctx context.Context, endpoint string, scope *variable.Scope, name string) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		v, err := scope.Get(name)
		if err != nil {
			return StatusOK, err
		}
		body, err := v.MarshalMsg(nil)
		if err != nil {
			return StatusOK, err
		}
		st, _, err := c.post(ctx, endpoint, "/var/"+name, body)
		return st, err
	})
}

func (c *FasthttpClient) AsyncGetVar(ctx context.Context, endpoint, inName, outName, alias string, scope *variable.Scope) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		st, body, err := c.post(ctx, endpoint, "/var/"+inName+"?alias="+alias, nil)
		if err != nil {
			return st, err
		}
		v := &variable.Variable{}
		if _, err := v.UnmarshalMsg(body); err != nil {
			return st, err
		}
		v.Name = outName
		scope.Set(v)
		return StatusOK, nil
	})
}

func (c *FasthttpClient) AsyncSendBatchBarrier(ctx context.Context, endpoint string) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		st, _, err := c.post(ctx, endpoint, "/barrier/batch", nil)
		return st, err
	})
}

func (c *FasthttpClient) AsyncSendFetchBarrier(ctx context.Context, endpoint string) Future {
	f := newChanFuture()
	return f.run(func() (Status, error) {
		st, _, err := c.post(ctx, endpoint, "/barrier/fetch", nil)
		return st, err
	})
}
