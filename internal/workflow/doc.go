// Package workflow implements the deal pipeline engine: stage transition
// validation against an injected stage graph, approval gating, and the atomic
// commit of stage, history, and audit writes with downstream job enqueueing.
package workflow
