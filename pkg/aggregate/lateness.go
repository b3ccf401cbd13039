/*
Copyright 2024 The Canalworks Authors.

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

package aggregate

import (
	"fmt"
	"strings"
)

// Policy decides what happens to an event whose window has already been
// closed by the watermark. It is selected once for the whole pipeline.
type Policy string

const (
	// PolicyAdjust re-opens the closed window, folds the late event and emits a
	// revised result superseding the prior emission for the same key. Consumers
	// must treat results as upsert-by-key.
	PolicyAdjust Policy = "adjust"
	// PolicyDrop discards any event whose window has closed, regardless of delay.
	PolicyDrop Policy = "drop"
)

// ParsePolicy parses a policy name, case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyAdjust:
		return PolicyAdjust, nil
	case PolicyDrop:
		return PolicyDrop, nil
	default:
		return "", fmt.Errorf("unknown lateness policy %q, must be one of [adjust, drop]", s)
	}
}
