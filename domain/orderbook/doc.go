// Package orderbook is a single-instrument limit order book with
// price-time priority matching.
//
// Price levels live in an index-addressed arena; each side keeps an
// ordered price index pointing into it, and a global order table owns the
// current value of every resting order. Levels only hold order ids.
//
// The book is synchronous and keeps no locks. One goroutine owns a book;
// callers that share it must serialize access themselves.
package orderbook
