// Package harness runs lifecycle scenarios against the full bridge stack.
//
// A scenario drives a sandboxed peer over an in-memory bus. Each flow step
// is an RPC call; the harness records the call, the backend requests it
// caused, the notifications the peer received and the response, then
// evaluates assertions against that trace and the final SQLite state.
//
// # Scenario Format
//
//	name: republish_changed
//	description: "A changed entry republishes in place"
//	schema: ../schema
//	entry:
//	  sys: { id: entry-1, type: Entry, version: 3, publishedVersion: 1, contentTypeId: post }
//	  fields: { title: { loc-en: Hello } }
//	flow:
//	  - call: setValue
//	    params: [title, en-US, Howdy]
//	    expect: { result: Howdy }
//	  - call: publishEntry
//	    expect: { state: Published }
//	assertions:
//	  - type: request_order
//	    requests: ["PUT /entries/entry-1/published"]
//	  - type: final_state
//	    table: entities
//	    where: { id: entry-1 }
//	    expect: { version: 6, published_version: 5 }
//
// Schema paths are resolved relative to the scenario file. Entry field
// data uses internal field ids and internal locale codes; call params use
// public ones, as sandboxed code would.
//
// # Assertion Types
//
//   - request_contains: a backend request was issued
//   - request_order: backend requests appear in the given order
//   - request_count: a backend request was issued exactly N times
//   - notify_count: the peer received a method exactly N times
//   - entity_state: the final lifecycle state
//   - final_state: a row of the entities or transitions table
//
// # Deterministic Testing
//
// Channel ids come from testutil.SequentialIDs and every scenario runs in a
// fresh in-memory database, so traces are byte-identical across runs and
// can be compared against golden files.
package harness
