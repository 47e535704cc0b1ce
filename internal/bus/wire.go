package bus

import "errors"

// DefaultPath is the websocket endpoint served by the page agent.
const DefaultPath = "/bus"

const (
	frameSend   = "send"
	frameReply  = "reply"
	frameTabs   = "tabs"
	frameListed = "tabs_result"
)

const (
	codeNoReceiver = "no_receiver"
	codePortClosed = "port_closed"
	codeBadFrame   = "bad_frame"
)

// ErrConnClosed reports that the connection to the page agent went away
// before a reply arrived.
var ErrConnClosed = errors.New("connection to page agent closed")

// frame is the JSON envelope exchanged over the websocket. ID correlates a
// request with its single reply.
type frame struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Tab      string    `json:"tab,omitempty"`
	Request  *Request  `json:"request,omitempty"`
	Response *Response `json:"response,omitempty"`
	Tabs     []TabInfo `json:"tabs,omitempty"`
	Code     string    `json:"code,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoReceiver):
		return codeNoReceiver
	case errors.Is(err, ErrPortClosed):
		return codePortClosed
	}
	return ""
}

func errorFromFrame(f frame) error {
	switch f.Code {
	case codeNoReceiver:
		return ErrNoReceiver
	case codePortClosed:
		return ErrPortClosed
	}
	if f.Error != "" {
		return errors.New(f.Error)
	}
	return nil
}
