package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// envelopeType marks a reliable-channel envelope whose payload is in utf8Data.
const envelopeType = "utf8"

// MaxDatagramSize is the MTU-safe payload budget for the unreliable channel.
const MaxDatagramSize = 508

// ErrEmptyMessage is returned by Decode for empty input.
var ErrEmptyMessage = errors.New("protocol: empty message")

// UnknownTypeError is returned by Decode when the discriminator is not in the catalogue.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown message type %q", e.Type)
}

type discriminator struct {
	Type string `json:"type"`
}

type envelope struct {
	Type     string `json:"type"`
	UTF8Data string `json:"utf8Data"`
}

// Encode serializes msg as a bare JSON object with its discriminator in "type".
//
// Precondition: msg must be non-nil.
// Postcondition: Returns a JSON object whose first key is "type", or a non-nil error.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("protocol: encode nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.MessageType(), err)
	}
	head, err := json.Marshal(discriminator{Type: msg.MessageType()})
	if err != nil {
		return nil, fmt.Errorf("encoding %s discriminator: %w", msg.MessageType(), err)
	}
	// Splice {"type":"…"} with the record's own fields.
	inner := bytes.TrimSpace(body)
	if len(inner) < 2 || inner[0] != '{' {
		return nil, fmt.Errorf("encoding %s: record is not a JSON object", msg.MessageType())
	}
	fields := inner[1 : len(inner)-1]
	if len(bytes.TrimSpace(fields)) == 0 {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(fields)+1)
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, fields...)
	out = append(out, '}')
	return out, nil
}

// Wrap places an encoded message inside the reliable-channel envelope.
//
// Postcondition: Returns {"type":"utf8","utf8Data":"<inner>"}.
func Wrap(inner []byte) ([]byte, error) {
	out, err := json.Marshal(envelope{Type: envelopeType, UTF8Data: string(inner)})
	if err != nil {
		return nil, fmt.Errorf("wrapping message: %w", err)
	}
	return out, nil
}

// EncodeWrapped encodes msg and wraps it for the reliable channel.
func EncodeWrapped(msg Message) ([]byte, error) {
	inner, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Wrap(inner)
}

// Decode parses wire text into a typed message. Both enveloped and bare forms
// are accepted; an envelope is unwrapped once.
//
// Postcondition: Returns a typed Message, an *UnknownTypeError for unrecognized
// discriminators, or another non-nil error for malformed input.
func Decode(data []byte) (Message, error) {
	return decode(data, true)
}

func decode(data []byte, allowEnvelope bool) (Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyMessage
	}

	var d discriminator
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("protocol: reading discriminator: %w", err)
	}

	if d.Type == envelopeType && allowEnvelope {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("protocol: reading envelope: %w", err)
		}
		return decode([]byte(env.UTF8Data), false)
	}

	msg := newMessage(d.Type)
	if msg == nil {
		return nil, &UnknownTypeError{Type: d.Type}
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: decoding %s: %w", d.Type, err)
	}
	return msg, nil
}
