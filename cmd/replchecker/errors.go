/*
Copyright 2026 The Replication Checker Authors

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

package main

import (
	"net/http"

	"github.com/fkfk000/replication-checker/common"
)

type errorCode int

const (
	unsupportedFormat errorCode = iota
	invalidParameter
	changesTooOld
	notConfigured
	serverError
)

func (e errorCode) apiError(description string) *common.APIError {
	ec, em, sc := e.errInfo()
	return &common.APIError{
		Code:        ec,
		Message:     em,
		Description: description,
		Status:      sc,
	}
}

func sendAPIError(code errorCode, description string, resp http.ResponseWriter) {
	code.apiError(description).Send(resp)
}

// The response says where the oldest stored change is.
func sendTooOld(first common.Sequence, resp http.ResponseWriter) {
	ae := changesTooOld.apiError("")
	ae.FirstSequence = first.String()
	ae.Send(resp)
}

func (e errorCode) errInfo() (string, string, int) {
	switch e {
	case unsupportedFormat:
		return "UNSUPPORTED_FORMAT", "The specified media type is not supported", http.StatusUnsupportedMediaType
	case invalidParameter:
		return "PARAMETER_INVALID", "A parameter has an invalid value", http.StatusBadRequest
	case changesTooOld:
		return "CHANGES_TOO_OLD", "Changes after this sequence have been purged", http.StatusBadRequest
	case notConfigured:
		return "NOT_CONFIGURED", "The server has no change database", http.StatusNotFound
	case serverError:
		return "INTERNAL_SERVER_ERROR", "An error occurred in the server", http.StatusInternalServerError
	default:
		return "UNKNOWN", "An unknown error occurred", http.StatusInternalServerError
	}
}
