// Package stages holds the four stage handlers the orchestrator runs:
// classify, extract, structure, and load. Each handler reads its input
// object, writes its artifact under the next prefix, and forwards a fresh
// notification back into the filter engine.
package stages
