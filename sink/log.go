package sink

import (
	"fmt"
	"strings"

	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/sirupsen/logrus"
)

/*
A LogSink prints one line for each event. Column values are printed as the
server sent them, and null columns are left out.
*/
type LogSink struct {
	log logrus.FieldLogger
}

func NewLogSink(l logrus.FieldLogger) *LogSink {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogSink{log: l}
}

func (s *LogSink) Handle(ev pgoutput.Event) error {
	switch e := ev.(type) {
	case *pgoutput.BeginEvent:
		s.log.Infof("BEGIN: Xid %d", e.Xid)
	case *pgoutput.CommitEvent:
		s.log.Infof("COMMIT: %s", e.EndLSN)
	case *pgoutput.RelationEvent:
		r := e.Relation
		s.log.Debugf("RELATION: %d %s (%d columns, replica identity %s)",
			r.ID, r.QualifiedName(), r.ColumnCount(), r.ReplicaIdentity)
	case *pgoutput.InsertEvent:
		s.log.Infof("%stable %s: INSERT: %s",
			streamPrefix(e.Streamed, e.Xid), e.Relation.QualifiedName(), formatRow(e.Relation, e.Row))
	case *pgoutput.UpdateEvent:
		var old string
		if e.OldKind != 0 {
			old = fmt.Sprintf("old (%s): %s ", keyKindName(e.OldKind), formatRow(e.Relation, e.OldRow))
		}
		s.log.Infof("%stable %s: UPDATE: %snew: %s",
			streamPrefix(e.Streamed, e.Xid), e.Relation.QualifiedName(), old, formatRow(e.Relation, e.NewRow))
	case *pgoutput.DeleteEvent:
		s.log.Infof("%stable %s: DELETE: (%s) %s",
			streamPrefix(e.Streamed, e.Xid), e.Relation.QualifiedName(),
			keyKindName(e.KeyKind), formatRow(e.Relation, e.Row))
	case *pgoutput.TruncateEvent:
		s.log.Infof("%sTRUNCATE: relations %v cascade %t restart identity %t",
			streamPrefix(e.Streamed, e.Xid), e.RelationIDs, e.Options.Cascade(), e.Options.RestartIdentity())
	case *pgoutput.StreamStartEvent:
		s.log.Infof("Opening a streamed block for transaction %d", e.Xid)
	case *pgoutput.StreamStopEvent:
		s.log.Infof("Stream Stop")
	case *pgoutput.StreamCommitEvent:
		s.log.Infof("Committing streamed transaction %d", e.Xid)
	case *pgoutput.StreamAbortEvent:
		if e.SubXid != e.Xid {
			s.log.Infof("Aborting subtransaction %d of streamed transaction %d", e.SubXid, e.Xid)
		} else {
			s.log.Infof("Aborting streamed transaction %d", e.Xid)
		}
	}
	return nil
}

func streamPrefix(streamed bool, xid uint32) string {
	if streamed {
		return fmt.Sprintf("Streaming, Xid: %d ", xid)
	}
	return ""
}

func keyKindName(k pgoutput.KeyKind) string {
	if k == pgoutput.KeyKindIndex {
		return "INDEX"
	}
	return "REPLICA IDENTITY"
}

func formatRow(rel *pgoutput.RelationInfo, row pgoutput.Row) string {
	var parts []string
	for i, v := range row {
		if v.IsNull() || i >= len(rel.Columns) {
			continue
		}
		parts = append(parts, rel.Columns[i].Name+": "+v.String())
	}
	return strings.Join(parts, " ")
}
