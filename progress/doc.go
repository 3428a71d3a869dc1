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

// Package progress records which work items an indexing run has completed so
// that a restarted run skips them, and reports throughput while it runs.
//
// The Store keeps one shared in-memory set per run. Workers mark IDs done as
// they finish; a single flush path writes full JSON snapshots with an atomic
// rename, so a crash mid-write leaves the previous snapshot intact.
package progress
