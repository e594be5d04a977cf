package chat

import (
	"encoding/json"
	"strings"

	"DMChat/service/presence"
	"DMChat/tools/errs"
)

// Frame is the JSON envelope of every text frame on the push channel.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// client → server frame types; anything else is ignored
const (
	FramePing = "ping"
	FramePong = "pong"
)

func EncodeEvent(ev presence.Event) ([]byte, error) {
	b, err := json.Marshal(outFrame{Type: ev.Type, Data: ev.Data})
	if err != nil {
		return nil, errs.ErrInternalServer.WrapErr(err, "encode frame", "type", ev.Type)
	}
	return b, nil
}

// ParseFrame accepts a JSON frame or the bare word "ping".
func ParseFrame(raw []byte) (*Frame, error) {
	s := strings.TrimSpace(string(raw))
	if s == FramePing {
		return &Frame{Type: FramePing}, nil
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errs.ErrArgs.WrapMsg("unmarshal frame failed", "err", err)
	}
	return &f, nil
}
