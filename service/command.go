package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"matchbook/domain/orderbook"
)

// ErrCorruptPayload is returned when a WAL payload cannot be decoded.
var ErrCorruptPayload = errors.New("service: corrupt command payload")

// Command payload fields. Unknown fields are skipped on decode.
const (
	fieldID       protowire.Number = 1
	fieldSide     protowire.Number = 2
	fieldType     protowire.Number = 3
	fieldPrice    protowire.Number = 4
	fieldQuantity protowire.Number = 5
	fieldTime     protowire.Number = 6
)

// PlaceCommand is the WAL form of an accepted submit call.
type PlaceCommand struct {
	ID       orderbook.OrderID
	Side     orderbook.Side
	Type     orderbook.OrderType
	Price    orderbook.Price
	Quantity orderbook.Quantity
	Time     time.Time
}

type CancelCommand struct {
	ID orderbook.OrderID
}

func (c PlaceCommand) Marshal() []byte {
	b := make([]byte, 0, 48)
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, c.ID[:])
	b = protowire.AppendTag(b, fieldSide, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Side))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Type))
	b = protowire.AppendTag(b, fieldPrice, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(c.Price)))
	b = protowire.AppendTag(b, fieldQuantity, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Quantity))
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.Time.UnixNano()))
	return b
}

// Order rebuilds the order the command submitted.
func (c PlaceCommand) Order() orderbook.Order {
	return orderbook.Order{
		ID:           c.ID,
		Side:         c.Side,
		Type:         c.Type,
		Price:        c.Price,
		OriginalQty:  c.Quantity,
		RemainingQty: c.Quantity,
		Status:       orderbook.New,
		Timestamp:    c.Time,
	}
}

func UnmarshalPlace(b []byte) (PlaceCommand, error) {
	var c PlaceCommand
	var hasID bool
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldID && typ == protowire.BytesType:
			n, err := consumeID(b, &c.ID)
			hasID = err == nil
			return n, err
		case num == fieldSide && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Side = orderbook.Side(v)
			return n, nil
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Type = orderbook.OrderType(v)
			return n, nil
		case num == fieldPrice && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Price = orderbook.Price(protowire.DecodeZigZag(v))
			return n, nil
		case num == fieldQuantity && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Quantity = orderbook.Quantity(v)
			return n, nil
		case num == fieldTime && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			c.Time = time.Unix(0, protowire.DecodeZigZag(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err == nil && !hasID {
		err = fmt.Errorf("%w: missing order id", ErrCorruptPayload)
	}
	return c, err
}

func (c CancelCommand) Marshal() []byte {
	b := make([]byte, 0, 18)
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	return protowire.AppendBytes(b, c.ID[:])
}

func UnmarshalCancel(b []byte) (CancelCommand, error) {
	var c CancelCommand
	var hasID bool
	err := decodeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldID && typ == protowire.BytesType {
			n, err := consumeID(b, &c.ID)
			hasID = err == nil
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err == nil && !hasID {
		err = fmt.Errorf("%w: missing order id", ErrCorruptPayload)
	}
	return c, err
}

// decodeFields walks the tags of b. field consumes one value and returns
// its length, or a negative protowire error code.
func decodeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptPayload, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorruptPayload, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func consumeID(b []byte, id *uuid.UUID) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return n, nil
	}
	parsed, err := uuid.FromBytes(v)
	if err != nil {
		return n, fmt.Errorf("%w: order id: %v", ErrCorruptPayload, err)
	}
	*id = parsed
	return n, nil
}
