// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the curation pipeline:
// documents and their curation/synthesis results, knowledge-graph edges,
// pending memories, agent call logs, and configuration.
package types

import "time"

// RelationshipKind is the type of a directed knowledge-graph edge.
type RelationshipKind string

const (
	RelBuildsUpon RelationshipKind = "builds-upon"
	RelImplements RelationshipKind = "implements"
	RelExtends    RelationshipKind = "extends"
	RelEnables    RelationshipKind = "enables"
)

// RelationshipKinds lists the accepted edge kinds in display order.
var RelationshipKinds = []RelationshipKind{RelBuildsUpon, RelImplements, RelExtends, RelEnables}

// Valid reports whether k is one of the four edge kinds.
func (k RelationshipKind) Valid() bool {
	for _, v := range RelationshipKinds {
		if k == v {
			return true
		}
	}
	return false
}

// RelationshipEdge links a source document to an existing approved target.
type RelationshipEdge struct {
	ID          string           `json:"id" yaml:"id"`
	SourceID    string           `json:"sourceId" yaml:"source_id"`
	TargetID    string           `json:"targetId" yaml:"target_id"`
	Kind        RelationshipKind `json:"kind" yaml:"kind"`
	Strength    float64          `json:"strength" yaml:"strength"`
	Explanation string           `json:"explanation" yaml:"explanation"`
	CreatedAt   time.Time        `json:"createdAt" yaml:"created_at"`
}

// MemoryKind classifies a pending memory.
type MemoryKind string

const (
	MemoryEpisodic   MemoryKind = "episodic"
	MemorySemantic   MemoryKind = "semantic"
	MemoryProcedural MemoryKind = "procedural"
	MemoryReflective MemoryKind = "reflective"
)

// Valid reports whether k is a known memory kind.
func (k MemoryKind) Valid() bool {
	switch k {
	case MemoryEpisodic, MemorySemantic, MemoryProcedural, MemoryReflective:
		return true
	}
	return false
}

// MemoryStatus tracks a memory through review.
type MemoryStatus string

const (
	MemoryPending   MemoryStatus = "pending"
	MemoryValidated MemoryStatus = "validated"
	MemoryRejected  MemoryStatus = "rejected"
	MemoryArchived  MemoryStatus = "archived"
)

// Valid reports whether s is a known memory status.
func (s MemoryStatus) Valid() bool {
	switch s {
	case MemoryPending, MemoryValidated, MemoryRejected, MemoryArchived:
		return true
	}
	return false
}

// Agent names the component that produced a memory or a model call.
type Agent string

const (
	AgentCurator     Agent = "curator"
	AgentSynthesizer Agent = "synthesizer"
	AgentTutor       Agent = "tutor"
	AgentConnector   Agent = "connector"
)

// Valid reports whether a is a known agent name.
func (a Agent) Valid() bool {
	switch a {
	case AgentCurator, AgentSynthesizer, AgentTutor, AgentConnector:
		return true
	}
	return false
}

// Evidence backs a memory with related documents and raw observations.
type Evidence struct {
	DocumentIDs  []string `json:"documentIds,omitempty" yaml:"document_ids,omitempty"`
	Observations []string `json:"observations,omitempty" yaml:"observations,omitempty"`
}

// Memory is a reusable observation awaiting, or past, human review.
type Memory struct {
	ID          string       `json:"id" yaml:"id"`
	Kind        MemoryKind   `json:"kind" yaml:"kind"`
	Content     string       `json:"content" yaml:"content"`
	Confidence  float64      `json:"confidence" yaml:"confidence"`
	Status      MemoryStatus `json:"status" yaml:"status"`
	SourceAgent Agent        `json:"sourceAgent" yaml:"source_agent"`
	Evidence    *Evidence    `json:"evidence,omitempty" yaml:"evidence,omitempty"`

	ReviewedBy  string     `json:"reviewedBy,omitempty" yaml:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty" yaml:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"reviewNotes,omitempty" yaml:"review_notes,omitempty"`

	CreatedAt  time.Time  `json:"createdAt" yaml:"created_at"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" yaml:"last_used_at,omitempty"`
	UseCount   int        `json:"useCount" yaml:"use_count"`
}

// Usage holds token counters for one model call. Zero when the provider
// reports nothing.
type Usage struct {
	TokensIn     int `json:"tokensIn" yaml:"tokens_in"`
	TokensOut    int `json:"tokensOut" yaml:"tokens_out"`
	CachedTokens int `json:"cachedTokens" yaml:"cached_tokens"`
}

// AgentCallLog records one model-gateway invocation for cost tracking.
type AgentCallLog struct {
	ID         string    `json:"id" yaml:"id"`
	DocumentID string    `json:"documentId,omitempty" yaml:"document_id,omitempty"`
	Agent      Agent     `json:"agent" yaml:"agent"`
	Model      string    `json:"model" yaml:"model"`
	Usage      Usage     `json:"usage" yaml:"usage"`
	LatencyMs  int64     `json:"latencyMs" yaml:"latency_ms"`
	CreatedAt  time.Time `json:"createdAt" yaml:"created_at"`
}

// UsageTotals aggregates agent call logs per agent and model.
type UsageTotals struct {
	Agent        Agent  `json:"agent" yaml:"agent"`
	Model        string `json:"model" yaml:"model"`
	Calls        int    `json:"calls" yaml:"calls"`
	TokensIn     int    `json:"tokensIn" yaml:"tokens_in"`
	TokensOut    int    `json:"tokensOut" yaml:"tokens_out"`
	CachedTokens int    `json:"cachedTokens" yaml:"cached_tokens"`
	LatencyMs    int64  `json:"latencyMs" yaml:"latency_ms"`
}
