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

package common

import (
	"encoding/json"
	"fmt"
	"net/http"
)

/*
An APIError is the JSON body of every error that the change and diagnostics
APIs return. It is also an error, so a client can return what it parsed.
*/
type APIError struct {
	// Symbolic, like "CHANGES_TOO_OLD"
	Code string `json:"code"`
	// One sentence
	Message     string `json:"error"`
	Description string `json:"description,omitempty"`
	// Set with CHANGES_TOO_OLD. A client that has missed changes can start
	// again from here.
	FirstSequence string `json:"firstSequence,omitempty"`
	// HTTP status. Not part of the body.
	Status int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Description)
}

/*
Send writes the error as indented JSON with its status code.
*/
func (e *APIError) Send(resp http.ResponseWriter) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(status)
	buf, _ := json.MarshalIndent(e, indentPrefix, indent)
	resp.Write(buf)
}

/*
UnmarshalAPIError reads an error body. "status" is the HTTP status that it
came with.
*/
func UnmarshalAPIError(data []byte, status int) (*APIError, error) {
	var e APIError
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.Code == "" {
		return nil, fmt.Errorf("not an API error: %q", data)
	}
	e.Status = status
	return &e, nil
}
