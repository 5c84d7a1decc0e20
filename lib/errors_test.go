/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lib

import (
	"context"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
)

func TestContextErrors(t *testing.T) {
	assert.True(t, IsCanceled(trace.Wrap(context.Canceled)))
	assert.False(t, IsCanceled(trace.Wrap(context.DeadlineExceeded)))
	assert.True(t, IsDeadline(trace.Wrap(context.DeadlineExceeded)))
	assert.False(t, IsDeadline(trace.BadParameter("nope")))
}
