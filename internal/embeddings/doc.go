// Package embeddings provides embedding generation via multiple providers.
//
// Supports FastEmbed (local ONNX), TEI (external service), and a
// deterministic mock provider for tests. Factory pattern enables provider
// selection at runtime with automatic dimension detection for common models.
package embeddings
