package protocol

import (
	"fmt"
)

type MessageType uint32

const (
	MessageTypeAuth                     MessageType = 1
	MessageTypeDocumentsAndEditorsDelta MessageType = 2
)

func (self MessageType) String() string {
	switch self {
	case MessageTypeAuth:
		return "Auth"
	case MessageTypeDocumentsAndEditorsDelta:
		return "DocumentsAndEditorsDelta"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(self))
	}
}

// Frame wraps one typed message for the wire.
type Frame struct {
	MessageType  MessageType `cbor:"messageType"`
	MessageBytes []byte      `cbor:"messageBytes"`
}

func ToFrame(message any) (*Frame, error) {
	var messageType MessageType
	switch v := message.(type) {
	case *Auth:
		messageType = MessageTypeAuth
	case *DocumentsAndEditorsDelta:
		messageType = MessageTypeDocumentsAndEditorsDelta
	default:
		return nil, fmt.Errorf("unknown message type: %T", v)
	}
	b, err := Marshal(message)
	if err != nil {
		return nil, err
	}
	return &Frame{
		MessageType:  messageType,
		MessageBytes: b,
	}, nil
}

func RequireToFrame(message any) *Frame {
	frame, err := ToFrame(message)
	if err != nil {
		panic(err)
	}
	return frame
}

func FromFrame(frame *Frame) (any, error) {
	var message any
	switch frame.MessageType {
	case MessageTypeAuth:
		message = &Auth{}
	case MessageTypeDocumentsAndEditorsDelta:
		message = &DocumentsAndEditorsDelta{}
	default:
		return nil, fmt.Errorf("unknown message type: %s", frame.MessageType)
	}
	err := Unmarshal(frame.MessageBytes, message)
	if err != nil {
		return nil, err
	}
	return message, nil
}

func RequireFromFrame(frame *Frame) any {
	message, err := FromFrame(frame)
	if err != nil {
		panic(err)
	}
	return message
}

func EncodeFrame(message any) ([]byte, error) {
	frame, err := ToFrame(message)
	if err != nil {
		return nil, err
	}
	return Marshal(frame)
}

func DecodeFrame(b []byte) (any, error) {
	frame := &Frame{}
	err := Unmarshal(b, frame)
	if err != nil {
		return nil, err
	}
	return FromFrame(frame)
}
