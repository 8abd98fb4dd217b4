package pgoutput

import (
	"time"

	"github.com/jackc/pglogrepl"
)

/*
LSN is a position in the write-ahead log. Zero means "nothing yet".
*/
type LSN uint64

func (l LSN) String() string {
	return pglogrepl.LSN(l).String()
}

/*
ParseLSN parses the "XXX/XXX" form that Postgres prints.
*/
func ParseLSN(s string) (LSN, error) {
	l, err := pglogrepl.ParseLSN(s)
	if err != nil {
		return 0, err
	}
	return LSN(l), nil
}

// MarshalText writes the "XXX/XXX" form, so that LSNs are readable in JSON.
func (l LSN) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LSN) UnmarshalText(b []byte) error {
	v, err := ParseLSN(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Microseconds between the Unix epoch and January 1, 2000, midnight UTC.
const epoch2000Micros = 946684800000000

/*
TimeFromPostgres converts a replication protocol timestamp, which is in
microseconds since 2000-01-01, to a time.Time.
*/
func TimeFromPostgres(micros int64) time.Time {
	return time.UnixMicro(micros + epoch2000Micros).UTC()
}

/*
TimeToPostgres is the inverse of TimeFromPostgres.
*/
func TimeToPostgres(t time.Time) int64 {
	return t.UnixMicro() - epoch2000Micros
}
