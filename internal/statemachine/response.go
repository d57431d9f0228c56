package statemachine

import (
	"fmt"

	"github.com/conflux-sh/conflux/internal/confluxerr"
)

// ResponseStatus distinguishes a committed command's two possible outcomes
//: the command was applied, or it was rejected by
// business validation without aborting the apply.
type ResponseStatus uint8

const (
	StatusOK ResponseStatus = iota
	StatusRejected
)

// Response is recorded per applied log entry and handed back to the
// client by the node; it is carried gob-encoded in sm.Result.Data.
type Response struct {
	Status  ResponseStatus
	Code    confluxerr.Code // zero value on success
	Message string

	ConfigID   uint64
	VersionID  uint64
	ProposalID uint64
}

func ok(msg string) Response {
	return Response{Status: StatusOK, Message: msg}
}

func okWithIDs(msg string, configID, versionID uint64) Response {
	return Response{Status: StatusOK, Message: msg, ConfigID: configID, VersionID: versionID}
}

func rejected(code confluxerr.Code, format string, args ...interface{}) Response {
	return Response{Status: StatusRejected, Code: code, Message: fmt.Sprintf(format, args...)}
}
