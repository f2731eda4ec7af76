// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package channel

import "code.hybscloud.com/netcore/internal/constpool"

// Option is an interned channel-configuration key: two Options created
// (or looked up) with the same name are the identical value for the life
// of the process.
type Option struct {
	name string
}

// Name returns the option's registered name.
func (o *Option) Name() string { return o.name }

func (o *Option) String() string { return o.name }

var optionPool constpool.Pool[*Option]

// NewOption interns and returns the Option named name, creating it on
// first use. Subsequent calls with the same name return the identical
// value.
func NewOption(name string) *Option {
	return optionPool.ValueOf(name, func(name string) *Option { return &Option{name: name} })
}

// The required option set from spec.md §6, pre-registered at package init
// so every caller that imports channel sees the same identity for each.
var (
	ALLOCATOR               = NewOption("ALLOCATOR")
	RCVBUF_ALLOCATOR         = NewOption("RCVBUF_ALLOCATOR")
	MESSAGE_SIZE_ESTIMATOR   = NewOption("MESSAGE_SIZE_ESTIMATOR")
	CONNECT_TIMEOUT_MILLIS   = NewOption("CONNECT_TIMEOUT_MILLIS")
	WRITE_SPIN_COUNT         = NewOption("WRITE_SPIN_COUNT")
	WRITE_BUFFER_WATER_MARK  = NewOption("WRITE_BUFFER_WATER_MARK")
	AUTO_READ                = NewOption("AUTO_READ")
	AUTO_CLOSE               = NewOption("AUTO_CLOSE")
	ALLOW_HALF_CLOSURE       = NewOption("ALLOW_HALF_CLOSURE")

	SO_KEEPALIVE = NewOption("SO_KEEPALIVE")
	SO_REUSEADDR = NewOption("SO_REUSEADDR")
	SO_RCVBUF    = NewOption("SO_RCVBUF")
	SO_SNDBUF    = NewOption("SO_SNDBUF")
	SO_LINGER    = NewOption("SO_LINGER")
	SO_BACKLOG   = NewOption("SO_BACKLOG")
	TCP_NODELAY  = NewOption("TCP_NODELAY")
	IP_TOS       = NewOption("IP_TOS")

	IP_MULTICAST_ADDR            = NewOption("IP_MULTICAST_ADDR")
	IP_MULTICAST_IF              = NewOption("IP_MULTICAST_IF")
	IP_MULTICAST_TTL             = NewOption("IP_MULTICAST_TTL")
	IP_MULTICAST_LOOP_DISABLED   = NewOption("IP_MULTICAST_LOOP_DISABLED")
)

// Options is a typed key-value registry of Option values, one per Channel.
type Options struct {
	values map[*Option]any
}

// NewOptions creates an empty registry.
func NewOptions() *Options { return &Options{values: make(map[*Option]any)} }

// Set assigns value to opt.
func (o *Options) Set(opt *Option, value any) { o.values[opt] = value }

// Get returns opt's value and whether it has been set.
func (o *Options) Get(opt *Option) (any, bool) {
	v, ok := o.values[opt]
	return v, ok
}

// GetOrDefault returns opt's value, or def if it was never set.
func (o *Options) GetOrDefault(opt *Option, def any) any {
	if v, ok := o.values[opt]; ok {
		return v
	}
	return def
}
