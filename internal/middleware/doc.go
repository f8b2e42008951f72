// Package middleware provides the standard pipeline stages: input validation,
// memory persistence, memory loading, context assembly and route dispatch.
//
// Standard composes them in the order every agent expects:
//
//	validateInput -> createMemory -> loadMemories -> wrapContext -> router
package middleware
