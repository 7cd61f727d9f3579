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

package graph_test

import (
	"testing"

	"github.com/sitedb/sitesync/graph"
)

func TestSlug(t *testing.T) {
	testDefs := []struct {
		name     string
		expected string
	}{
		{"Global Admin", "global-admin"},
		{"Site Executive", "site-executive"},
		{"Data Manager / PhEDEx", "data-manager-phedex"},
		{"already-slugged", "already-slugged"},
		{"  Padded  ", "-padded-"},
		{"", ""},
	}
	for _, testDef := range testDefs {
		if got := graph.Slug(testDef.name); got != testDef.expected {
			t.Errorf(
				"Slug(%q): got %q, expected %q",
				testDef.name,
				got,
				testDef.expected,
			)
		}
	}
}

func TestCountryCode(t *testing.T) {
	testDefs := []struct {
		name     string
		expected string
	}{
		{"T2_US_Example", "us"},
		{"T1_DE_KIT", "de"},
		{"T10_CH_CERN", "ch"},
		{"T2_us_lower", ""},
		{"X2_US_Example", ""},
		{"T2_USA_Example", ""},
		{"", ""},
	}
	for _, testDef := range testDefs {
		if got := graph.CountryCode(testDef.name); got != testDef.expected {
			t.Errorf(
				"CountryCode(%q): got %q, expected %q",
				testDef.name,
				got,
				testDef.expected,
			)
		}
	}
}
