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
package storage

const createTableSQL = `
pragma journal_mode=WAL;

create table if not exists replchecker_entries
(lsn integer not null,
 ix integer not null,
 ts integer,
 data blob,
 primary key(lsn, ix)
) without rowid;

create index if not exists replchecker_entries_ts
on replchecker_entries
(ts);

create table if not exists replchecker_checkpoint
(slot text primary key,
 lsn integer not null,
 ts integer
);
`

const insertSQL = `
insert or replace into replchecker_entries (lsn, ix, ts, data)
values (?, ?, ?, ?)
`

const readEntrySQL = `
select data from replchecker_entries where lsn = ? and ix = ?
`

const readRangeSQL = `
select lsn, ix, data from replchecker_entries
where (lsn > ?) or (lsn == ? and ix >= ?)
order by lsn, ix
`

const readFirstSQL = `
select lsn, ix from replchecker_entries order by lsn asc, ix asc limit 1
`

const readLastSQL = `
select lsn, ix from replchecker_entries order by lsn desc, ix desc limit 1
`

const purgeByTimeSQL = `
delete from replchecker_entries where ts < ?
`

const writeCheckpointSQL = `
insert or replace into replchecker_checkpoint (slot, lsn, ts)
values (?, ?, ?)
`

const readCheckpointSQL = `
select lsn from replchecker_checkpoint where slot = ?
`
