// Package telefork implements transmission of a running process's
// state to a peer server over HTTP: the client seizes a target,
// harvests its registers and memory, and POSTs them; the server
// reconstructs a new process from that payload.
package telefork

import "proctool/snapshot"

// requestIDHeader carries a per-transmission correlation id so client
// and server logs can be joined.
const requestIDHeader = "X-Telefork-Request-Id"

// Request is the body POSTed to a telefork server: a donor's register
// banks and its fully populated memory map.
type Request struct {
	GPRegisterData snapshot.RegisterBank   `json:"gp_register_data"`
	FPRegisterData snapshot.FPRegisterBank `json:"fp_register_data"`
	MemoryMaps     []snapshot.MemoryRegion `json:"memory_maps"`
}

// Response is the server's reply to a telefork request.
type Response struct {
	Success bool `json:"success"`
}
