// Package harness runs multi-participant puzzle scenarios against real
// coordinators joined over in-memory networks.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: two_players_solve
//	description: "alice solves, the owner runs the side effect once"
//	participants:
//	  - id: gm
//	    owner: true
//	  - id: alice
//	definition:
//	  title: Vault
//	  tiles: [{id: sun}, {id: moon}]
//	  solution: [moon, sun]
//	open:
//	  by: gm
//	  session: vault-1
//	steps:
//	  - deliver: true
//	  - place: {by: alice, piece: moon, slot: 0}
//	  - fault: {to: gm, network: primary, mode: drop}
//	  - duplicate-last: gm
//	  - advance: 61s
//	assertions:
//	  - type: board
//	    participant: gm
//	    slots: [moon, sun]
//	  - type: solved
//	    participant: gm
//	    count: 1
//
// definitionFile may replace definition; it is resolved relative to the
// scenario file. Either way the definition goes through the same schema
// check and normalization as puzzlesync validate.
//
// # Networks
//
// Every participant is attached to two networks: "primary", which
// broadcasts like the WebSocket relay, and "fallback", which honors
// recipient lists like the Redis whisper. Faults are set per recipient and
// network and stay until replaced; held deliveries wait for a release
// step.
//
// # Determinism
//
// Scenarios share a fake clock starting at testutil.Epoch, ids come from
// per-participant counters ("gm-1", "gm-2", ...) and shuffles use a fixed
// seed, so the delivery trace of a scenario is stable and can be compared
// against a golden file.
package harness
