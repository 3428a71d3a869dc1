// Copyright 2025 The gutty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

const (
	tablePrefix  = "vtab:"
	recordPrefix = "vrec:"
	indexPrefix  = "vidx:"
)

func makeTableKey(table string) []byte {
	return []byte(tablePrefix + table)
}

func makeRecordKey(table, id string) []byte {
	return []byte(recordPrefix + table + ":" + id)
}

// makeRecordPrefix returns the prefix shared by every record of table.
// Table names never contain ':' so one table's prefix cannot match another's.
func makeRecordPrefix(table string) []byte {
	return []byte(recordPrefix + table + ":")
}

func makeIndexKey(table, column string) []byte {
	return []byte(indexPrefix + table + ":" + column)
}

func makeIndexPrefix(table string) []byte {
	return []byte(indexPrefix + table + ":")
}
