// Package services provides the centralized service registry for infrad.
//
// Registry pattern for accessing all core services (vector store,
// sessions, memory, cloud state, federator, assembler, llm). The
// registry is constructed once in cmd wiring and passed by reference;
// there are no process globals. Cross-group user operations (Stats,
// CleanupUser) that span every index group also live here.
package services
