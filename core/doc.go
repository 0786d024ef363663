// Package core holds the identity linking domain: contracts, the resolver,
// linker, provisioner and authentication gate, and the callback orchestrator
// (Service) that drives them. Storage and OAuth adapters depend on core; core
// depends on neither.
package core
