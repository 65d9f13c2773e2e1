// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models inside teammesh.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, ToolChoice)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight scripting for tests and examples (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so supervisors and workers remain decoupled from vendor SDKs.
package model
