package wire

import (
	"fmt"
	"io"
)

// Request is a decoded request body: REQ_ID(4 LE) | CMD(1) | PAYLOAD.
type Request struct {
	ReqID   uint32
	Command CommandCode
	Payload []byte
}

// Response is a decoded response body: REQ_ID(4 LE) | STATUS(1) | PAYLOAD.
type Response struct {
	ReqID   uint32
	Status  Status
	Payload []byte
}

// EncodeRequest writes the request frame to w.
func EncodeRequest(w io.Writer, req Request) error {
	body := NewWriter()
	body.U32(req.ReqID).U8(byte(req.Command))
	b := append(body.Bytes(), req.Payload...)
	return Encode(w, b)
}

// DecodeRequestBody parses a request frame body.
func DecodeRequestBody(body []byte) (Request, error) {
	if len(body) < 5 {
		return Request{}, fmt.Errorf("%w: request body too short", ErrProtocol)
	}
	r := NewReader(body)
	id, err := r.U32()
	if err != nil {
		return Request{}, err
	}
	cmd, err := r.U8()
	if err != nil {
		return Request{}, err
	}
	return Request{ReqID: id, Command: CommandCode(cmd), Payload: body[5:]}, nil
}

// EncodeResponse writes the response frame to w. A response always echoes
// the request's ReqID (spec.md §4.1 contract).
func EncodeResponse(w io.Writer, resp Response) error {
	body := NewWriter()
	body.U32(resp.ReqID).U8(byte(resp.Status))
	b := append(body.Bytes(), resp.Payload...)
	return Encode(w, b)
}

// DecodeResponseBody parses a response frame body.
func DecodeResponseBody(body []byte) (Response, error) {
	if len(body) < 5 {
		return Response{}, fmt.Errorf("%w: response body too short", ErrProtocol)
	}
	r := NewReader(body)
	id, err := r.U32()
	if err != nil {
		return Response{}, err
	}
	st, err := r.U8()
	if err != nil {
		return Response{}, err
	}
	return Response{ReqID: id, Status: Status(st), Payload: body[5:]}, nil
}

// ErrorPayload returns the Error response payload: a UTF-8 message.
func ErrorPayload(msg string) []byte {
	return []byte(msg)
}
