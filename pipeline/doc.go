// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline implements the bidirectional handler chain that sits
// between a Channel and its Transport.
//
// A Pipeline is a doubly linked list of HandlerContext nodes bracketed by
// a sentinel head and tail. Inbound events travel head to tail; outbound
// operations travel tail to head, ending at the head which forwards them
// to the Transport. Handlers are added and removed dynamically, including
// from within their own event callbacks.
//
// The package depends on no concrete socket implementation: Transport is
// consumed as an interface, satisfied elsewhere by whatever I/O primitive
// a Channel is built on.
package pipeline
