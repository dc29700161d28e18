// Package service is the write path of the engine. It owns the order
// book and puts every command through the same steps: sequence it, log
// it to the entry WAL, apply it to the book, then record the resulting
// trades in the outbox for the broadcaster.
//
// It has no knowledge of transports; the gRPC server and the binaries
// sit on top of it.
package service
