// Package net is the TCP wire-protocol collaborator around the matching
// engine: it decodes client requests, calls the engine's public façade, and
// reports trades and errors back over the wire. It only ever consumes the
// engine's public Order/Trade/MarketData values and never reaches back into
// it beyond that façade.
package net

import (
	"errors"

	"github.com/google/uuid"

	"ledgerbook/internal/book"
)

var (
	ErrInvalidMessageType = errors.New("net: invalid message type")
	ErrMessageTooShort    = errors.New("net: message too short")
)

// MessageType identifies a client-to-server wire message.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	LogBook
)

// ReportType identifies a server-to-client wire message.
type ReportType byte

const (
	AckReport ReportType = iota
	ExecutionReport
	ErrorReport
)

// BaseMessageHeaderLen is the length, in bytes, of every message's type
// header.
const BaseMessageHeaderLen = 2

// Message is any decoded client-to-server request.
type Message interface {
	GetType() MessageType
}

// BaseMessage is the generic message shape, carrying only its type. Used
// as-is for Heartbeat and LogBook, which have no body.
type BaseMessage struct {
	TypeOf MessageType
}

func (m BaseMessage) GetType() MessageType { return m.TypeOf }

// ParseMessage decodes the type header and dispatches to the matching
// per-type parser.
func ParseMessage(msg []byte) (Message, error) {
	if len(msg) < BaseMessageHeaderLen {
		return nil, ErrMessageTooShort
	}
	r := newReader(msg)
	hi, _ := r.byte()
	lo, _ := r.byte()
	typeOf := MessageType(uint16(hi)<<8 | uint16(lo))

	body := msg[BaseMessageHeaderLen:]
	switch typeOf {
	case NewOrder:
		return parseNewOrder(body)
	case CancelOrder:
		return parseCancelOrder(body)
	case Heartbeat, LogBook:
		return BaseMessage{TypeOf: typeOf}, nil
	default:
		return nil, ErrInvalidMessageType
	}
}

// NewOrderMessage carries everything Engine.Submit needs, plus a
// client-generated correlation id. The submitter doesn't learn the engine's
// int64 order id until the server's ack arrives, so ClientRef is how it
// matches that ack back to this specific request.
type NewOrderMessage struct {
	ClientRef uuid.UUID
	Pair      string
	Side      book.Side
	Type      book.Type
	Price     string // decimal string; empty for market orders
	Quantity  string // decimal string
	Username  string
}

func (m NewOrderMessage) GetType() MessageType { return NewOrder }

func parseNewOrder(msg []byte) (NewOrderMessage, error) {
	r := newReader(msg)
	var m NewOrderMessage

	ref, err := r.bytes(16)
	if err != nil {
		return NewOrderMessage{}, err
	}
	copy(m.ClientRef[:], ref)

	sideByte, err := r.byte()
	if err != nil {
		return NewOrderMessage{}, err
	}
	m.Side = book.Side(sideByte)

	typeByte, err := r.byte()
	if err != nil {
		return NewOrderMessage{}, err
	}
	m.Type = book.Type(typeByte)

	if m.Pair, err = r.lenPrefixedString(); err != nil {
		return NewOrderMessage{}, err
	}
	if m.Price, err = r.lenPrefixedString(); err != nil {
		return NewOrderMessage{}, err
	}
	if m.Quantity, err = r.lenPrefixedString(); err != nil {
		return NewOrderMessage{}, err
	}
	if m.Username, err = r.lenPrefixedString(); err != nil {
		return NewOrderMessage{}, err
	}
	return m, nil
}

// Serialize encodes the message for the wire, header included.
func (m NewOrderMessage) Serialize() []byte {
	w := newWriter()
	w.uint16(uint16(NewOrder))
	w.putBytes(m.ClientRef[:])
	w.putByte(byte(m.Side))
	w.putByte(byte(m.Type))
	w.lenPrefixedString(m.Pair)
	w.lenPrefixedString(m.Price)
	w.lenPrefixedString(m.Quantity)
	w.lenPrefixedString(m.Username)
	return w.Bytes()
}

// CancelOrderMessage requests cancellation of an order by its engine-
// assigned id.
type CancelOrderMessage struct {
	OrderID int64
	Pair    string
}

func (m CancelOrderMessage) GetType() MessageType { return CancelOrder }

func parseCancelOrder(msg []byte) (CancelOrderMessage, error) {
	r := newReader(msg)
	var m CancelOrderMessage

	id, err := r.uint64()
	if err != nil {
		return CancelOrderMessage{}, err
	}
	m.OrderID = int64(id)

	if m.Pair, err = r.lenPrefixedString(); err != nil {
		return CancelOrderMessage{}, err
	}
	return m, nil
}

// Serialize encodes the message for the wire, header included.
func (m CancelOrderMessage) Serialize() []byte {
	w := newWriter()
	w.uint16(uint16(CancelOrder))
	w.uint64(uint64(m.OrderID))
	w.lenPrefixedString(m.Pair)
	return w.Bytes()
}

// Report is every server-to-client message: an order ack (carrying the
// newly allocated id), an execution report (one per trade, one per side),
// or an error report.
type Report struct {
	Type      ReportType
	ClientRef uuid.UUID
	OrderID   int64
	Pair      string
	Side      book.Side
	Price     string
	Quantity  string
	Err       string
	Timestamp int64
}

// Serialize encodes the report for the wire.
func (r Report) Serialize() []byte {
	w := newWriter()
	w.putByte(byte(r.Type))
	w.putBytes(r.ClientRef[:])
	w.uint64(uint64(r.OrderID))
	w.lenPrefixedString(r.Pair)
	w.putByte(byte(r.Side))
	w.lenPrefixedString(r.Price)
	w.lenPrefixedString(r.Quantity)
	w.lenPrefixedString(r.Err)
	w.uint64(uint64(r.Timestamp))
	return w.Bytes()
}

// ParseReport decodes a Report from the wire. Used by the CLI client.
func ParseReport(buf []byte) (Report, error) {
	r := newReader(buf)
	var rep Report

	t, err := r.byte()
	if err != nil {
		return Report{}, err
	}
	rep.Type = ReportType(t)

	ref, err := r.bytes(16)
	if err != nil {
		return Report{}, err
	}
	copy(rep.ClientRef[:], ref)

	id, err := r.uint64()
	if err != nil {
		return Report{}, err
	}
	rep.OrderID = int64(id)

	if rep.Pair, err = r.lenPrefixedString(); err != nil {
		return Report{}, err
	}

	sideByte, err := r.byte()
	if err != nil {
		return Report{}, err
	}
	rep.Side = book.Side(sideByte)

	if rep.Price, err = r.lenPrefixedString(); err != nil {
		return Report{}, err
	}
	if rep.Quantity, err = r.lenPrefixedString(); err != nil {
		return Report{}, err
	}
	if rep.Err, err = r.lenPrefixedString(); err != nil {
		return Report{}, err
	}

	ts, err := r.uint64()
	if err != nil {
		return Report{}, err
	}
	rep.Timestamp = int64(ts)

	return rep, nil
}
