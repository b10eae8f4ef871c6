package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mklimuk/spectral"
)

const (
	MethodSetLed = "setLed"
	MethodGetLed = "getLed"
)

var (
	ErrBadRequest = errors.New("telemetry: malformed rpc request")
	ErrIndicator  = errors.New("telemetry: could not drive indicator")
)

type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResult struct {
	Success bool `json:"success"`
}

// ResponseTopic derives v1/devices/me/rpc/response/<id> from a request topic.
// ok is false when the topic carries no request id.
func ResponseTopic(requestTopic string) (string, bool) {
	i := strings.LastIndexByte(requestTopic, '/')
	if i < 0 || i == len(requestTopic)-1 {
		return "", false
	}
	return RPCResponsePrefix + requestTopic[i+1:], true
}

// HandleRPC executes one RPC request against the indicator and returns the
// response document. When the indicator fails, the failure response is
// returned together with an error wrapping ErrIndicator.
func HandleRPC(payload []byte, led spectral.Indicator) ([]byte, error) {
	var req rpcRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	switch req.Method {
	case MethodSetLed:
		if err := led.Set(ledState(req.Params)); err != nil {
			resp, merr := json.Marshal(rpcResult{Success: false})
			if merr != nil {
				return nil, merr
			}
			return resp, fmt.Errorf("%w: %w", ErrIndicator, err)
		}
		return json.Marshal(rpcResult{Success: true})
	case MethodGetLed:
		return json.Marshal(led.On())
	default:
		return json.Marshal(rpcResult{Success: false})
	}
}

// ledState accepts either a bare boolean or {"state": bool}. Anything else
// switches the LED off.
func ledState(params json.RawMessage) bool {
	var state bool
	if err := json.Unmarshal(params, &state); err == nil {
		return state
	}
	var obj struct {
		State bool `json:"state"`
	}
	if err := json.Unmarshal(params, &obj); err == nil {
		return obj.State
	}
	return false
}
