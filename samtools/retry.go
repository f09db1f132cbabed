// smfix: reconcile sample names and SM tags in SAM/BAM files.
// Copyright (c) 2021 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/smfix/blob/master/LICENSE.txt>.

package samtools

import (
	"fmt"
	"log"
)

// A RetryError is returned by Retry when every attempt of a command
// failed.
type RetryError struct {
	MaxRetry int
	Command  string
	Err      error
}

func (err *RetryError) Error() string {
	return fmt.Sprintf("*ERROR*: max number of retry (%v) reached, failed command %v: %v", err.MaxRetry, err.Command, err.Err)
}

func (err *RetryError) Unwrap() error {
	return err.Err
}

// Retry calls attempt until it returns nil, at most maxRetry+1 times.
// Attempts are numbered from 0 and follow each other immediately.
// The command string is only used for logging and error reporting.
//
// If the last attempt still fails, Retry returns a *RetryError.
func Retry(maxRetry int, command string, attempt func(try int) error) error {
	if maxRetry < 0 {
		maxRetry = 0
	}
	var err error
	for try := 0; try <= maxRetry; try++ {
		if try == 0 {
			log.Println(":", command)
		} else {
			log.Printf("Retry %v of %v: %v\n", try, maxRetry, command)
		}
		if err = attempt(try); err == nil {
			return nil
		}
		log.Printf("Attempt %v failed: %v\n", try, err)
	}
	return &RetryError{MaxRetry: maxRetry, Command: command, Err: err}
}
