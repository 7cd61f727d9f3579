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

package response

import (
	"errors"
	"fmt"
)

// Category classifies a hard error on the data path
type Category string

const (
	CategoryBadStatus Category = "bad-status"
	CategoryBadCType  Category = "bad-ctype"
	CategoryBadJSON   Category = "bad-json"
	CategoryCommError Category = "comm-error"
	CategoryException Category = "exception"
)

// Error is a hard error retrieving or decoding a resource
type Error struct {
	Err      error
	Category Category
	Resource string
	Message  string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s: retrieving %q: %s: %v",
			e.Category,
			e.Resource,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s: retrieving %q: %s", e.Category, e.Resource, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CategoryOf returns the category of err, or CategoryException when err does
// not carry one
func CategoryOf(err error) Category {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Category
	}
	return CategoryException
}

func newError(
	category Category,
	resource string,
	err error,
	format string,
	args ...any,
) *Error {
	return &Error{
		Category: category,
		Resource: resource,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}
}

// CommError wraps a transport failure for a resource
func CommError(resource string, err error) *Error {
	return newError(
		CategoryCommError,
		resource,
		err,
		"communication failure with the data server",
	)
}
