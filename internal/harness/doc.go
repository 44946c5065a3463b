// Package harness runs mapping scenarios and records what they compile.
//
// A scenario names CUE record definitions, loads a record into a known
// state, and runs a sequence of steps against it. Each step compiles
// statements, a document command or a change diff; the collected output is
// the scenario transcript, compared against golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: shrink_items
//	description: "Truncating an array deletes the tail rows"
//	specs:
//	  - ../specs/doc.cue
//	record: Doc
//	loaded: { k: 5, v: 2, items: [{sku: a, qty: 1}, {sku: b, qty: 2}] }
//	steps:
//	  - op: update
//	    set: { items: [{}] }
//	  - op: query
//	    where: "items.qty > 1"
//	    sort: [{field: k, desc: true}]
//	assertions:
//	  - type: statement_contains
//	    step: 1
//	    sql: DELETE FROM "doc_items"
//	  - type: final_state
//	    table: doc
//	    where: { k: 5 }
//	    expect: { v: 3 }
//
// # Assertion Types
//
//   - statement_contains: some statement of a step contains a SQL fragment
//   - statement_order: fragments occur in successive statements of a step
//   - statement_count: a step compiled exactly N statements
//   - final_state: queries a table and verifies expected values
//
// # Execution
//
// By default steps are compiled only, so transcripts hold for every
// dialect. With execute set, every step also runs against a fresh
// in-memory SQLite store, and final_state assertions read its tables.
// Executed saves are audited: the change entries written to the audit
// tables, chunked at the store's value limit, join the step transcript.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/shrink_items.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
