// Package issues converts illegitimate redundancy patterns into actionable,
// deduplicated findings.
//
// # Overview
//
// A detection pass can see the same defect many times: every TrackCall and
// CompleteCall re-runs detection over the recent ledger window, and a render
// loop keeps producing the same pattern. The aggregator absorbs that
// repetition. An issue is only created when no equivalent issue (same type,
// same severity, within the dedup window) already exists, so the history
// stays readable under sustained noise.
//
// # History Semantics
//
// The history is newest-first and bounded: when it reaches capacity the
// oldest issue is dropped. Issues are immutable once created; a recurring
// defect surfaces again only after its previous issue ages past the dedup
// window.
//
// # Categorization
//
// Categories come from an ordered keyword table (see Categorize). The first
// matching rule wins, which makes the priority between overlapping keyword
// sets ("cache" vs "duplicate") explicit and testable.
//
// # Error Handling
//
// Record never fails. A verdict with no recognizable reason degrades to a
// generic type, a generic fix, and the general-optimization category: a less
// specific issue beats a dropped one.
package issues
