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
	"regexp"
	"strings"
)

var (
	slugSeparator = regexp.MustCompile(`[^a-z0-9]+`)
	cmsSiteName   = regexp.MustCompile(`^T\d+_([A-Z][A-Z])_`)
	noneIMHandle  = regexp.MustCompile(`(?i)^none(:none)*$`)
)

// Slug returns the comparison key of a role title or group name: lower case
// with every run of other characters replaced by a single hyphen.
func Slug(name string) string {
	return slugSeparator.ReplaceAllString(strings.ToLower(name), "-")
}

// CountryCode returns the lower case country code embedded in a CMS site
// name such as T2_US_Example, or "" if the name has none
func CountryCode(cmsName string) string {
	m := cmsSiteName.FindStringSubmatch(cmsName)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// normalizeIMHandle clears placeholder handles like "none:none"
func normalizeIMHandle(handle string) string {
	if noneIMHandle.MatchString(handle) {
		return ""
	}
	return handle
}
