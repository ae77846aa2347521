// Package errcode defines the error codes shared by every layer of the
// search engine, from collection lifecycle down to binlog ingestion. A
// single closed set of codes lets callers at the RPC boundary map an error
// to a response `code` without string-matching.
package errcode

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure. The zero value is never a valid
// failure code.
type Code int

const (
	_ Code = iota

	DuplicateCollection
	InexistentCollection
	StatusError
	LoadConfig
	RuntimeError
	InvalidArgument
	MismatchedSchema
	MismatchedMagicNumber
	MismatchedDataType
	MismatchedForward
	InvalidRevision
	InvalidVectorFormat
	InvalidQuery
	UnavailableSegment
	InvalidSegment
	OutOfBoundsResult
	ScheduleError
	StoppedService
	SuspendedCollection
	InvalidCollectionConfig
	UnsupportedMysqlVersion
	UnsupportedBinlogFormat
	ExecuteMysql
	InvalidMysqlResult
	ConnectMysql
	FetchMysqlResult
	BinlogNoMoreData
	InvalidRowData
	Suspended
	ExecuteSimpleCommand
	DuplicateKey
)

var names = map[Code]string{
	DuplicateCollection:     "DuplicateCollection",
	InexistentCollection:    "InexistentCollection",
	StatusError:             "StatusError",
	LoadConfig:              "LoadConfig",
	RuntimeError:            "RuntimeError",
	InvalidArgument:         "InvalidArgument",
	MismatchedSchema:        "MismatchedSchema",
	MismatchedMagicNumber:   "MismatchedMagicNumber",
	MismatchedDataType:      "MismatchedDataType",
	MismatchedForward:       "MismatchedForward",
	InvalidRevision:         "InvalidRevision",
	InvalidVectorFormat:     "InvalidVectorFormat",
	InvalidQuery:            "InvalidQuery",
	UnavailableSegment:      "UnavailableSegment",
	InvalidSegment:          "InvalidSegment",
	OutOfBoundsResult:       "OutOfBoundsResult",
	ScheduleError:           "ScheduleError",
	StoppedService:          "StoppedService",
	SuspendedCollection:     "SuspendedCollection",
	InvalidCollectionConfig: "InvalidCollectionConfig",
	UnsupportedMysqlVersion: "UnsupportedMysqlVersion",
	UnsupportedBinlogFormat: "UnsupportedBinlogFormat",
	ExecuteMysql:            "ExecuteMysql",
	InvalidMysqlResult:      "InvalidMysqlResult",
	ConnectMysql:            "ConnectMysql",
	FetchMysqlResult:        "FetchMysqlResult",
	BinlogNoMoreData:        "BinlogNoMoreData",
	InvalidRowData:          "InvalidRowData",
	Suspended:               "Suspended",
	ExecuteSimpleCommand:    "ExecuteSimpleCommand",
	DuplicateKey:            "DuplicateKey",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the error type returned across the core subsystems. It carries a
// Code usable by a response envelope plus a human Reason, and optionally
// wraps an underlying cause for log output.
type Error struct {
	Code   Code
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with the given code and reason.
func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Newf builds an *Error with a formatted reason.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(code Code, cause error, reason string) *Error {
	return &Error{Code: code, Reason: reason, Cause: cause}
}

// CodeOf extracts the Code of err if it is (or wraps) an *Error, otherwise
// returns RuntimeError for any non-nil err and 0 for nil.
func CodeOf(err error) Code {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RuntimeError
}
