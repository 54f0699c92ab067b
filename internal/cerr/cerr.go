// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package cerr provides a string type for declaring errors as constants.
package cerr

// Error is an error whose message is the string itself, so that sentinel
// errors can be declared with const and compared with errors.Is.
type Error string

func (e Error) Error() string {
	return string(e)
}
