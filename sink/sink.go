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

/*
Package sink contains the places that decoded replication events can go.
Each one is a replication.Sink. Sinks that want whole transactions rather
than single events are TransactionHandlers, and are fed by Transactions.
*/
package sink

import (
	"github.com/fkfk000/replication-checker/common"
	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/fkfk000/replication-checker/replication"
)

/*
A TransactionHandler receives each transaction once it has committed.
*/
type TransactionHandler interface {
	HandleTransaction(txn *common.Transaction) error
}

/*
TransactionSink assembles events into transactions and hands each one to
every handler in turn. A handler that fails stops the rest.
*/
type TransactionSink struct {
	assembler *common.Assembler
	handlers  []TransactionHandler
}

/*
Transactions creates a TransactionSink. "catalog" must be the one that the
session decodes into.
*/
func Transactions(catalog *pgoutput.Catalog, handlers ...TransactionHandler) *TransactionSink {
	return &TransactionSink{
		assembler: common.NewAssembler(catalog),
		handlers:  handlers,
	}
}

func (s *TransactionSink) Handle(ev pgoutput.Event) error {
	txn, err := s.assembler.Add(ev)
	if err != nil || txn == nil {
		return err
	}
	for _, h := range s.handlers {
		if err = h.HandleTransaction(txn); err != nil {
			return err
		}
	}
	return nil
}

// Pending returns the number of streamed transactions still open.
func (s *TransactionSink) Pending() int {
	return s.assembler.Pending()
}

type tee []replication.Sink

/*
Tee returns a sink that passes each event to every one of "sinks", in
order, and stops at the first error.
*/
func Tee(sinks ...replication.Sink) replication.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return tee(sinks)
}

func (t tee) Handle(ev pgoutput.Event) error {
	for _, s := range t {
		if err := s.Handle(ev); err != nil {
			return err
		}
	}
	return nil
}

/*
Discard is a sink that does nothing.
*/
var Discard replication.Sink = replication.SinkFunc(func(pgoutput.Event) error {
	return nil
})
