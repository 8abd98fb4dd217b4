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
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/fkfk000/replication-checker/common"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

const (
	defaultLimit    = 100
	maxBlock        = 300
	tableValidChars = `^[0-9A-Za-z_$.]+$`
)

var emptySequence = common.Sequence{}
var lowestPossibleSequence = common.MakeSequence(0, 1)
var reTable = regexp.MustCompile(tableValidChars)

func (s *server) initChangesAPI(router *httprouter.Router) {
	router.HandlerFunc("GET", "/changes", s.handleGetChanges)
}

func (s *server) handleGetChanges(resp http.ResponseWriter, req *http.Request) {
	if s.db == nil {
		sendAPIError(notConfigured, "", resp)
		return
	}

	enc := selectMediaType(req, []string{jsonContent, protoContent})
	if enc == "" {
		sendAPIError(unsupportedFormat, "", resp)
		return
	}

	q := req.URL.Query()

	limit, err := getIntParam(q, "limit", defaultLimit)
	if err != nil {
		sendAPIError(invalidParameter, "limit", resp)
		return
	}

	block, err := getIntParam(q, "block", 0)
	if err != nil || block > maxBlock {
		sendAPIError(invalidParameter, "block", resp)
		return
	}

	tables := q["table"]
	for _, t := range tables {
		if !reTable.MatchString(t) {
			sendAPIError(invalidParameter, "table", resp)
			return
		}
	}

	var sinceSeq common.Sequence
	since := q.Get("since")
	if since == "" {
		sinceSeq = emptySequence
	} else {
		sinceSeq, err = common.ParseSequence(since)
		if err != nil {
			sendAPIError(invalidParameter, "since", resp)
			return
		}
	}

	// Need to advance past a single "since" value
	startSeq := sinceSeq.Next()
	filter := makeTableFilter(tables)

	firstSeq, lastSeq, entries, success :=
		s.receiveChanges(startSeq, limit, filter, resp)
	if !success {
		return
	}

	if len(entries) == 0 && block > 0 {
		// Query -- which was consistent at the "snapshot" level -- didn't
		// return anything. Wait until something is put in the database and try again.
		waitSeq := lastSeq.Next()
		if waitSeq.Compare(startSeq) < 0 {
			waitSeq = startSeq
		}

		log.Debugf("Blocking at %s for up to %d seconds", waitSeq, block)
		newSeq := s.tracker.timedWait(waitSeq, time.Duration(block)*time.Second)

		if newSeq.Compare(startSeq) >= 0 {
			firstSeq, lastSeq, entries, success =
				s.receiveChanges(startSeq, limit, filter, resp)
			if !success {
				return
			}
		}
	}

	changeList := common.ChangeList{
		FirstSequence: firstSeq.String(),
		LastSequence:  lastSeq.String(),
		Changes:       []common.Change{},
	}

	for _, e := range entries {
		change, err := common.UnmarshalChangeProto(e)
		if err != nil {
			sendAPIError(serverError,
				fmt.Sprintf("Invalid data in database: %s", err), resp)
			return
		}
		// Database doesn't have value of "Sequence" in it
		change.Sequence = change.GetSequence().String()
		changeList.Changes = append(changeList.Changes, *change)
	}

	// Important to return an intermediate sequence if we ran up against the limit
	if len(entries) == limit && limit > 0 {
		changeList.LastSequence = changeList.Changes[len(entries)-1].Sequence
	}

	var buf []byte
	if enc == protoContent {
		buf, err = changeList.MarshalProto()
	} else {
		buf, err = changeList.Marshal()
	}
	if err != nil {
		sendAPIError(serverError, err.Error(), resp)
		return
	}
	resp.Header().Set("Content-Type", enc)
	resp.Write(buf)
}

func (s *server) receiveChanges(
	startSeq common.Sequence, limit int, filter func([]byte) bool,
	resp http.ResponseWriter) (firstSeq, lastSeq common.Sequence, entries [][]byte, success bool) {

	log.Debugf("Receiving changes: since = %s limit = %d", startSeq, limit)

	var err error
	entries, firstSeq, lastSeq, err = s.db.Scan(
		startSeq.LSN, startSeq.Index, limit, filter)

	if err != nil {
		sendAPIError(serverError, err.Error(), resp)
		return
	}
	if startSeq.Compare(firstSeq) < 0 && startSeq.Compare(lowestPossibleSequence) > 0 {
		// "since" parameter specified and too old. Need to return an error.
		log.Debugf("since value of %s is too old compared to %s", startSeq, firstSeq)
		sendTooOld(firstSeq, resp)
		return
	}

	log.Debugf("Received %d changes", len(entries))
	success = true
	return
}

/*
makeTableFilter returns a filter that keeps changes to any of "tables", or
nil to keep everything. A truncate is kept if it names one of them.
*/
func makeTableFilter(tables []string) func([]byte) bool {
	if len(tables) == 0 {
		return nil
	}
	want := make(map[string]bool)
	for _, t := range tables {
		want[t] = true
	}
	return func(buf []byte) bool {
		c, err := common.UnmarshalChangeProto(buf)
		if err != nil {
			return false
		}
		if want[c.Table] {
			return true
		}
		for _, t := range c.Tables {
			if want[t] {
				return true
			}
		}
		return false
	}
}
