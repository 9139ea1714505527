package gateway

import (
	"encoding/json"

	"github.com/c360/bridgekit/errors"
)

// Frame operations.
const (
	opInvoke      = "invoke"
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opResult      = "result"
	opError       = "error"
	opEvent       = "event"
)

// clientFrame is one JSON message from a remote caller. Op selects which of
// the remaining fields apply.
type clientFrame struct {
	Op           string            `json:"op"`
	ID           string            `json:"id,omitempty"`
	Module       string            `json:"module,omitempty"`
	Method       string            `json:"method,omitempty"`
	Event        string            `json:"event,omitempty"`
	Subscription string            `json:"subscription,omitempty"`
	Args         []json.RawMessage `json:"args,omitempty"`
	TimeoutMS    int64             `json:"timeout_ms,omitempty"`
}

// serverFrame is one JSON message to a remote caller. Result and error
// frames echo the client's correlation id; event frames carry the
// subscription id instead.
type serverFrame struct {
	Op           string            `json:"op"`
	ID           string            `json:"id,omitempty"`
	Result       any               `json:"result,omitempty"`
	Error        *errors.WireError `json:"error,omitempty"`
	Subscription string            `json:"subscription,omitempty"`
	Module       string            `json:"module,omitempty"`
	Event        string            `json:"event,omitempty"`
	Payload      any               `json:"payload,omitempty"`
}

func resultFrame(id string, result any) serverFrame {
	return serverFrame{Op: opResult, ID: id, Result: result}
}

func subscribedFrame(id, subscription string) serverFrame {
	return serverFrame{Op: opResult, ID: id, Subscription: subscription}
}

func errorFrame(id string, err error) serverFrame {
	return serverFrame{Op: opError, ID: id, Error: errors.ToWire(err)}
}

func eventFrame(subscription, moduleName, event string, payload any) serverFrame {
	return serverFrame{
		Op:           opEvent,
		Subscription: subscription,
		Module:       moduleName,
		Event:        event,
		Payload:      payload,
	}
}
