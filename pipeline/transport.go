// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"net"

	"code.hybscloud.com/netcore/buf"
	"code.hybscloud.com/netcore/executor"
)

// Transport is the socket-facing primitive a pipeline's head forwards
// outbound operations to; inbound bytes enter the pipeline through
// Pipeline.FireChannelRead, not through the pipeline calling Read. It is consumed,
// not implemented, by this package: platform-specific I/O lives outside
// netcore's core, the same boundary spec.md draws around the readiness
// primitive.
type Transport interface {
	// Read fills dst and returns the number of bytes read. Returns
	// iox.ErrWouldBlock-style errors via the caller's own sentinel when
	// nothing is currently available. Nothing in this module calls Read.
	Read(dst *buf.ByteBuf) (n int, err error)
	// Write drains src's readable bytes to the transport, returning how
	// many were actually written (may be fewer than ReadableBytes on a
	// partial write).
	Write(src *buf.ByteBuf) (n int, err error)
	// Flush forces any buffered outbound writes out.
	Flush() error
	Bind(addr net.Addr) error
	// Connect returns a future that completes once the connection attempt
	// resolves (success or failure).
	Connect(addr net.Addr) (executor.Future[struct{}], error)
	Disconnect() error
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}
