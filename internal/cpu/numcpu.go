// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cpu

import "runtime"

// DefaultArenaCount returns the default number of pool arenas a single
// process should create for one backing kind (heap or direct), following
// the same 2x-per-core rule of thumb the source environment-property table
// documents for numHeapArenas/numDirectArenas.
func DefaultArenaCount() int {
	n := runtime.GOMAXPROCS(0) * 2
	if n < 1 {
		n = 1
	}
	return n
}
