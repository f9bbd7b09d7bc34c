package models

import (
	"encoding/json"
	"fmt"
)

/*
Wire protocol. All frames are JSON objects discriminated by "type".

Client -> server: join, update, cursor.
Server -> client: init, update, userCount, cursor, error.

Inbound frames decode into one concrete message type each, so the sync
engine can switch exhaustively instead of fishing fields out of a generic
map.
*/

// MessageType discriminates protocol frames.
type MessageType string

const (
	MessageTypeJoin      MessageType = "join"
	MessageTypeUpdate    MessageType = "update"
	MessageTypeCursor    MessageType = "cursor"
	MessageTypeInit      MessageType = "init"
	MessageTypeUserCount MessageType = "userCount"
	MessageTypeError     MessageType = "error"
)

// ClientMessage is implemented by the three inbound message kinds.
type ClientMessage interface {
	clientMessage()
}

// JoinMessage asks to bind the connection to a document.
type JoinMessage struct {
	DocID string `json:"docId"`
}

// UpdateMessage proposes a full replacement of the document content.
type UpdateMessage struct {
	DocID    string `json:"docId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// CursorMessage reports the sender's cursor position.
type CursorMessage struct {
	Data CursorPosition `json:"data"`
}

func (JoinMessage) clientMessage()   {}
func (UpdateMessage) clientMessage() {}
func (CursorMessage) clientMessage() {}

// ParseClientMessage decodes a raw inbound frame into its concrete type.
// Unknown types are an error; the engine drops them.
func ParseClientMessage(raw []byte) (ClientMessage, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch envelope.Type {
	case MessageTypeJoin:
		var msg JoinMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("malformed join: %w", err)
		}
		return msg, nil
	case MessageTypeUpdate:
		var msg UpdateMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("malformed update: %w", err)
		}
		return msg, nil
	case MessageTypeCursor:
		var msg CursorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("malformed cursor: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", envelope.Type)
	}
}

// Snapshot is the full current content of a document, sent on join and
// carried by update broadcasts.
type Snapshot struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// Outbound frame constructors. Marshaling these structs cannot fail, so
// the constructors return the encoded frame directly.

func InitFrame(code, language string) []byte {
	return mustMarshal(struct {
		Type MessageType `json:"type"`
		Data Snapshot    `json:"data"`
	}{MessageTypeInit, Snapshot{code, language}})
}

func UpdateFrame(code, language string) []byte {
	return mustMarshal(struct {
		Type MessageType `json:"type"`
		Data Snapshot    `json:"data"`
	}{MessageTypeUpdate, Snapshot{code, language}})
}

func UserCountFrame(count int) []byte {
	return mustMarshal(struct {
		Type  MessageType `json:"type"`
		Count int         `json:"count"`
	}{MessageTypeUserCount, count})
}

func CursorFrame(clientID string, pos CursorPosition) []byte {
	return mustMarshal(struct {
		Type     MessageType    `json:"type"`
		ClientID string         `json:"clientId"`
		Data     CursorPosition `json:"data"`
	}{MessageTypeCursor, clientID, pos})
}

func ErrorFrame(code string) []byte {
	return mustMarshal(struct {
		Type  MessageType `json:"type"`
		Error string      `json:"error"`
	}{MessageTypeError, code})
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
