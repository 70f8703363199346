package embedpy

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// CallRequest asks the call server to import Module and call Func(Args...).
type CallRequest struct {
	ID     string `msgpack:"id"`
	Module string `msgpack:"module"`
	Func   string `msgpack:"func"`
	Args   []any  `msgpack:"args"`
}

// CallResponse answers the CallRequest with the same ID. Exactly one of
// Result and Error is meaningful; Exception is set when the failure was
// raised in the guest.
type CallResponse struct {
	ID        string               `msgpack:"id"`
	Result    any                  `msgpack:"result"`
	Error     string               `msgpack:"error,omitempty"`
	Exception *TranslatedException `msgpack:"exception,omitempty"`
}

// ServeCalls answers CallRequests read from t until the peer closes the
// stream, which ends the loop with a nil error. Requests and responses are
// encoded with the bridge's Serializer. A request that cannot be decoded
// gets an error response; a transport failure ends the loop.
func (b *Bridge) ServeCalls(t Transport) error {
	for {
		data, err := t.Receive()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receiving call request: %w", err)
		}

		var req CallRequest
		var resp CallResponse
		if err := b.serializer.Unmarshal(data, &req); err != nil {
			resp.Error = fmt.Sprintf("malformed call request: %v", err)
		} else {
			resp = b.serveCall(req)
		}

		out, err := b.serializer.Marshal(resp)
		if err != nil {
			out, err = b.serializer.Marshal(CallResponse{
				ID:    resp.ID,
				Error: fmt.Sprintf("result of %s.%s cannot be encoded: %v", req.Module, req.Func, err),
			})
			if err != nil {
				return err
			}
		}
		if err := t.Send(out); err != nil {
			return fmt.Errorf("sending call response: %w", err)
		}
	}
}

func (b *Bridge) serveCall(req CallRequest) CallResponse {
	resp := CallResponse{ID: req.ID}
	b.diag(DiagHost, "call request", zap.String("id", req.ID), zap.String("module", req.Module), zap.String("func", req.Func))
	mod, err := b.Import(req.Module)
	if err != nil {
		return failed(resp, err)
	}
	defer mod.Release()
	res, err := mod.CallValue(req.Func, nil, req.Args...)
	if err != nil {
		return failed(resp, err)
	}
	resp.Result = res
	return resp
}

func failed(resp CallResponse, err error) CallResponse {
	resp.Error = err.Error()
	var e *Error
	if errors.As(err, &e) {
		resp.Exception = e.Exception
	}
	return resp
}
