// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package pipeline

import "code.hybscloud.com/netcore/internal/errs"

// ErrHandlerNotFound is returned by Remove/Replace/AddBefore/AddAfter when
// no handler is registered under the given name.
var ErrHandlerNotFound = errs.ErrHandlerNotFound

// ErrHandlerNameDuplicate is returned by AddFirst/AddLast/AddBefore/AddAfter
// when the given name is already in use within the pipeline.
var ErrHandlerNameDuplicate = errs.ErrHandlerNameDuplicate
