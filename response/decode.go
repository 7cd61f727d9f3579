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

// Package response turns data server replies into resource rows.
//
// Two body shapes are accepted. A tabular reply carries positional rows and a
// column description:
//
//	{"result": [["T1_CH_CERN", "1"], ...], "desc": {"columns": ["name", "tier"]}}
//
// which is zipped into field-named rows. A record reply already carries
// field-named rows:
//
//	{"result": [{"name": "T1_CH_CERN", "tier": "1"}, ...]}
package response

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/sitedb/sitesync/resource"
)

const MediaTypeJSON = "application/json"

// Payload is a raw reply for a resource
type Payload struct {
	Header      http.Header
	Status      string
	ContentType string
	Body        []byte
	StatusCode  int
	// FromCache is set when the transport answered from its own cache
	FromCache bool
}

// Result is a decoded reply
type Result struct {
	Rows []resource.Row
	// NotModified means the caller's current value should be reused
	NotModified bool
}

type envelope struct {
	Result *[]json.RawMessage `json:"result"`
	Desc   *struct {
		Columns []string `json:"columns"`
	} `json:"desc"`
}

// Decode validates a reply for the named resource and returns its rows.
// Errors are always of type *Error.
func Decode(name string, p *Payload) (*Result, error) {
	switch p.StatusCode {
	case http.StatusNotModified:
		return &Result{NotModified: true}, nil
	case http.StatusOK:
	default:
		return nil, newError(
			CategoryBadStatus,
			name,
			nil,
			"status code %d != 200 (%q)",
			p.StatusCode,
			p.Status,
		)
	}
	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	if err != nil || mediaType != MediaTypeJSON {
		return nil, newError(
			CategoryBadCType,
			name,
			err,
			"expected %q reply, got %q",
			MediaTypeJSON,
			p.ContentType,
		)
	}
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(p.Body))
	if err := dec.Decode(&env); err != nil {
		return nil, newError(
			CategoryBadJSON,
			name,
			err,
			"failed to parse json result",
		)
	}
	if env.Result == nil {
		return nil, newError(
			CategoryBadJSON,
			name,
			nil,
			"reply has no result",
		)
	}
	rows, err := decodeRows(*env.Result, env.Desc)
	if err != nil {
		return nil, newError(
			CategoryBadJSON,
			name,
			err,
			"failed to parse json result",
		)
	}
	return &Result{Rows: rows}, nil
}

func decodeRows(
	raw []json.RawMessage,
	desc *struct {
		Columns []string `json:"columns"`
	},
) ([]resource.Row, error) {
	rows := make([]resource.Row, 0, len(raw))
	if desc != nil && desc.Columns != nil {
		for _, item := range raw {
			var cells []any
			if err := json.Unmarshal(item, &cells); err != nil {
				return nil, err
			}
			rows = append(rows, zip(desc.Columns, cells))
		}
		return rows, nil
	}
	for _, item := range raw {
		var row resource.Row
		if err := json.Unmarshal(item, &row); err != nil {
			return nil, err
		}
		if row == nil {
			row = resource.Row{}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// zip pairs column names with cells. Missing cells are nil, surplus cells
// are dropped.
func zip(columns []string, cells []any) resource.Row {
	row := make(resource.Row, len(columns))
	for i, col := range columns {
		if i < len(cells) {
			row[col] = cells[i]
		} else {
			row[col] = nil
		}
	}
	return row
}
