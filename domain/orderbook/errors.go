package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")

	// ErrPriceLevelNotFound means a side index and the level arena disagree.
	// It is never caused by caller input.
	ErrPriceLevelNotFound = errors.New("price level not found")
)

type OrderNotFoundError struct {
	OrderID OrderID
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order not found: %s", e.OrderID)
}

func (e *OrderNotFoundError) Is(target error) bool { return target == ErrOrderNotFound }

type OrderAlreadyExistsError struct {
	OrderID OrderID
}

func (e *OrderAlreadyExistsError) Error() string {
	return fmt.Sprintf("order already exists: %s", e.OrderID)
}

func (e *OrderAlreadyExistsError) Is(target error) bool { return target == ErrOrderAlreadyExists }

type InvalidQuantityError struct {
	Quantity Quantity
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity: %d", e.Quantity)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

type InvalidPriceError struct {
	Price Price
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price: %d", e.Price)
}

func (e *InvalidPriceError) Is(target error) bool { return target == ErrInvalidPrice }

type PriceLevelNotFoundError struct {
	Price Price
}

func (e *PriceLevelNotFoundError) Error() string {
	return fmt.Sprintf("price level not found: %d", e.Price)
}

func (e *PriceLevelNotFoundError) Is(target error) bool { return target == ErrPriceLevelNotFound }

var ErrInvalidOrder = errors.New("invalid order")

// InvalidOrderError rejects orders with an unknown side or type, or
// snapshot orders that cannot be restored as resting orders.
type InvalidOrderError struct {
	OrderID OrderID
	Reason  string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order %s: %s", e.OrderID, e.Reason)
}

func (e *InvalidOrderError) Is(target error) bool { return target == ErrInvalidOrder }
