// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package graph

import (
	"encoding/json"
	"strconv"

	"github.com/sitedb/sitesync/resource"
)

// field returns a row cell as a string. Numbers are formatted, absent and
// null cells are "".
func field(row resource.Row, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// cellBefore reports whether a is strictly before b. Numbers compare
// numerically and strings lexically; any other pairing is unordered.
func cellBefore(a any, b any) bool {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	case json.Number:
		if bv, ok := b.(json.Number); ok {
			af, aerr := av.Float64()
			bf, berr := bv.Float64()
			return aerr == nil && berr == nil && af < bf
		}
	}
	return false
}
