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
	"path/filepath"
	"runtime"
	"time"

	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

type backupResult struct {
	Path string `json:"path"`
}

func (s *server) initDiagAPI(router *httprouter.Router) {
	router.HandlerFunc("GET", "/diagnostics/stack", s.handleGetStack)
	router.HandlerFunc("POST", "/diagnostics/backup", s.handleBackup)
}

func (s *server) handleGetStack(
	resp http.ResponseWriter, req *http.Request) {
	stackBufLen := 64
	for {
		stackBuf := make([]byte, stackBufLen)
		stackLen := runtime.Stack(stackBuf, true)
		if stackLen == len(stackBuf) {
			// Must be truncated
			stackBufLen *= 2
		} else {
			resp.Header().Set("Content-Type", textContent)
			resp.Write(stackBuf[:stackLen])
			return
		}
	}
}

/*
handleBackup copies the change database to a new directory next to it and
returns the name of that directory once the copy is complete.
*/
func (s *server) handleBackup(
	resp http.ResponseWriter, req *http.Request) {
	if s.db == nil {
		sendAPIError(notConfigured, "", resp)
		return
	}

	dest := fmt.Sprintf("%s-backup-%s",
		filepath.Clean(s.dbDir), time.Now().UTC().Format("20060102T150405.000000000"))
	log.Infof("Backing up change database to %s", dest)

	for bp := range s.db.Backup(dest) {
		if bp.Error != nil {
			sendAPIError(serverError, bp.Error.Error(), resp)
			return
		}
		log.Debugf("Backup has %d pages remaining", bp.PagesRemaining)
		if bp.Done {
			break
		}
	}
	writeJSON(resp, &backupResult{Path: dest})
}
