package embedpy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestServeCalls(t *testing.T) {
	b, _, _ := newTestBridge(t, Config{Modules: []Module{*NewModuleFromString("calc", "<calc>", `
def add(a, b):
    return a + b
def boom():
    fail("kaboom")
`)}})

	var in, out bytes.Buffer
	client := NewFrameTransport(&out, &in)
	var s MsgpackSerializer
	for _, req := range []CallRequest{
		{ID: "1", Module: "calc", Func: "add", Args: []any{40, 2}},
		{ID: "2", Module: "calc", Func: "boom"},
		{ID: "3", Module: "nosuch", Func: "f"},
	} {
		data, err := s.Marshal(req)
		if err != nil {
			t.Fatal(err)
		}
		if err := client.Send(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := client.Send([]byte{0xc1}); err != nil {
		t.Fatal(err)
	}

	if err := b.ServeCalls(NewFrameTransport(&in, &out)); err != nil {
		t.Fatalf("ServeCalls: %v", err)
	}

	var resps []CallResponse
	for {
		data, err := client.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		var r CallResponse
		if err := s.Unmarshal(data, &r); err != nil {
			t.Fatal(err)
		}
		resps = append(resps, r)
	}
	if len(resps) != 4 {
		t.Fatalf("got %d responses, want 4", len(resps))
	}
	if r := resps[0]; r.ID != "1" || r.Error != "" || fmt.Sprint(r.Result) != "42" {
		t.Errorf("add response = %+v", r)
	}
	if r := resps[1]; r.ID != "2" || r.Exception == nil || !strings.Contains(r.Exception.Value, "kaboom") {
		t.Errorf("boom response = %+v", r)
	}
	if r := resps[2]; r.ID != "3" || r.Error == "" {
		t.Errorf("import failure response = %+v", r)
	}
	if r := resps[3]; r.Error == "" {
		t.Errorf("malformed request response = %+v", r)
	}
}
