// Package ledger implements C1, the authoritative relational store for
// the identity core: catalog, candidates, assignments, axial relations,
// freeze state, idempotency snapshots, and the audit version log. It
// owns schema and invariants; higher-level components (resolver,
// candidates, readiness, freeze, projection, adminapi) call through its
// transactional, project-scoped primitives rather than touching SQL
// directly.
package ledger

import "time"

// CatalogStatus is the lifecycle state of a catalog row.
type CatalogStatus string

const (
	CatalogActive     CatalogStatus = "active"
	CatalogMerged     CatalogStatus = "merged"
	CatalogDeprecated CatalogStatus = "deprecated"
)

// CandidateSource names where a candidate proposal originated.
type CandidateSource string

const (
	SourceManual    CandidateSource = "manual"
	SourceLLM       CandidateSource = "llm"
	SourceDiscovery CandidateSource = "discovery"
	SourceSemantic  CandidateSource = "semantic"
	SourceLegacy    CandidateSource = "legacy"
)

// CandidateState is the lifecycle state of a candidate row.
type CandidateState string

const (
	CandidatePending   CandidateState = "pending"
	CandidateValidated CandidateState = "validated"
	CandidateRejected  CandidateState = "rejected"
	CandidateMerged    CandidateState = "merged"
)

// AxialRelationKind names the relation between a category and a code.
type AxialRelationKind string

const (
	RelationCause       AxialRelationKind = "cause"
	RelationCondition   AxialRelationKind = "condition"
	RelationConsequence AxialRelationKind = "consequence"
	RelationPartOf      AxialRelationKind = "part_of"
)

// AxialState is the lifecycle state of an axial relation row.
type AxialState string

const (
	AxialPending   AxialState = "pending"
	AxialValidated AxialState = "validated"
	AxialRejected  AxialState = "rejected"
)

// VersionAction names the kind of ontology-affecting event recorded in
// the audit version log.
type VersionAction string

const (
	ActionCreate    VersionAction = "create"
	ActionRename    VersionAction = "rename"
	ActionMerge     VersionAction = "merge"
	ActionUnmerge   VersionAction = "unmerge"
	ActionPromote   VersionAction = "promote"
	ActionDeprecate VersionAction = "deprecate"

	// ActionFreeze and ActionUnfreeze extend the six core codigo-scoped
	// actions spec section 3 names, so that freeze toggling (a mutating
	// operation with no associated codigo) still satisfies P9's audit
	// completeness property.
	ActionFreeze   VersionAction = "freeze"
	ActionUnfreeze VersionAction = "unfreeze"
)

// Catalog is a definitive code row (spec section 3, invariants I1-I4).
type Catalog struct {
	CodeID          int64
	ProjectID       string
	Codigo          string
	Status          CatalogStatus
	CanonicalCodeID *int64
	Memo            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SelfCanonical reports whether c declares itself canonical.
func (c Catalog) SelfCanonical() bool {
	return c.CanonicalCodeID != nil && *c.CanonicalCodeID == c.CodeID
}

// Candidate is a proposed code pending validation.
type Candidate struct {
	ID         int64
	ProjectID  string
	Codigo     string
	FragmentID *string
	Source     CandidateSource
	Confidence float64
	State      CandidateState
	MergedInto *string
	Memo       string
	Validator  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Assignment is a definitive code-to-fragment link.
type Assignment struct {
	ProjectID  string
	FragmentID string
	Codigo     string
	CodeID     *int64
	Cita       string
	SourceFile string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AxialRelation is a category-to-code relation with evidence.
type AxialRelation struct {
	ID        int64
	ProjectID string
	Categoria string
	Codigo    string
	CodeID    int64
	Relation  AxialRelationKind
	Memo      string
	Evidence  []string
	State     AxialState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Freeze is the per-project operational lock record.
type Freeze struct {
	ProjectID string
	IsFrozen  bool
	FrozenAt  *time.Time
	FrozenBy  string
	BrokenAt  *time.Time
	BrokenBy  string
	Note      string
}

// IdemRecord is a stored response snapshot keyed by idempotency key,
// scoped to a project and operation so that two operations sharing a
// key by coincidence never collide.
type IdemRecord struct {
	ProjectID string
	Operation string
	Key       string
	Response  []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// VersionEvent is one append-only audit log entry.
type VersionEvent struct {
	ID        int64
	ProjectID string
	Codigo    string
	CodeID    *int64
	Action    VersionAction
	Actor     string
	Previous  string
	Next      string
	At        time.Time
}

// SyncCursor records the last-synced position per (project_id, entity).
type SyncCursor struct {
	ProjectID string
	Entity    string
	Cursor    string
	UpdatedAt time.Time
}

// FragmentSyncStatus tracks the neo4j_synced flag and retry state for
// one fragment row (spec section 3's "Sync Status").
type FragmentSyncStatus struct {
	ProjectID     string
	FragmentID    string
	Synced        bool
	Attempts      int
	LastError     string
	LastAttemptAt *time.Time
}

// LinkPredictionState is the validation state of a code-to-code link
// prediction, mirroring candidate/axial's pending-validated-rejected
// shape: only a validated prediction is ever projected.
type LinkPredictionState string

const (
	LinkPredictionPending   LinkPredictionState = "pending"
	LinkPredictionValidated LinkPredictionState = "validated"
	LinkPredictionRejected  LinkPredictionState = "rejected"
)

// LinkPrediction is a proposed code-to-code relation from an external
// link-prediction collaborator (spec section 4.6's "Code-REL{type,
// source}->Code (from validated link predictions)" edge), stored here
// so synced state survives restarts the same way fragment sync does.
type LinkPrediction struct {
	ID           int64
	ProjectID    string
	SourceCodeID int64
	TargetCodeID int64
	RelType      string
	Source       string
	State        LinkPredictionState
	Synced       bool
	SyncError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
