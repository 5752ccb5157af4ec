package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/agentmem/internal/errs"
)

// Objects is the Memory Object Store: mutable, reinforceable, versioned
// through explicit supersession links rather than in-place history.
type Objects struct {
	db *DB
}

// NewObjects wraps db with Memory Object Store operations.
func NewObjects(db *DB) *Objects { return &Objects{db: db} }

// ObjectFilter narrows List.
type ObjectFilter struct {
	Status     Status
	ObjectType ObjectType
	ScopeType  ScopeType
	ScopePath  string
	Limit      int
}

// Create fills in defaults (status=active, strength=1.0, outcome_score=0.5,
// review_status=pending, confidence_tier derived from the object's evidence
// fields), inserts the row and its FTS shadow, and indexes the supplied
// token values.
func (o *Objects) Create(obj *MemoryObject, tokens []string) (*MemoryObject, error) {
	if obj.Content == "" {
		return nil, errs.E("store.Objects.Create", errs.InvalidInput, fmt.Errorf("content is required"))
	}
	if !IsValidObjectType(obj.ObjectType) {
		return nil, errs.E("store.Objects.Create", errs.InvalidInput, fmt.Errorf("unknown object_type %q", obj.ObjectType))
	}

	out := *obj
	now := time.Now().UTC()
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Status == "" {
		out.Status = StatusActive
	}
	if out.Confidence == "" {
		out.Confidence = ConfidenceMedium
	}
	if out.ReviewStatus == "" {
		out.ReviewStatus = ReviewPending
	}
	out.ConfidenceTier = DeriveConfidenceTier(out.CodeRefs, out.EvidenceEventIDs, out.ReviewStatus, out.LastVerifiedAt)
	if out.Strength == 0 {
		out.Strength = 1.0
	}
	if out.OutcomeScore == 0 {
		out.OutcomeScore = 0.5
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	out.LastAccessed = now

	tx, err := o.db.Begin()
	if err != nil {
		return nil, errs.E("store.Objects.Create", errs.Storage, err)
	}
	defer tx.Rollback()

	if err := insertObject(tx, &out); err != nil {
		return nil, errs.E("store.Objects.Create", errs.Storage, err)
	}

	if _, err := tx.Exec(`INSERT INTO memory_objects_fts (id, content, evidence_excerpt) VALUES (?, ?, ?)`,
		out.ID, out.Content, out.EvidenceExcerpt); err != nil {
		log.Warn("memory_objects_fts insert failed", "error", err)
	}

	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO object_tokens (object_id, token, type) VALUES (?, ?, ?)`, out.ID, tok, "identifier"); err != nil {
			log.Warn("object_tokens insert failed", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.E("store.Objects.Create", errs.Storage, err)
	}

	return &out, nil
}

// DeriveConfidenceTier computes confidence_tier as a pure function of
// code_refs, evidence_event_ids, review_status, and last_verified_at:
// grounded requires an approved review backed by code references or a
// verification within the last 30 days; observed requires at least one
// evidence event; hypothesis is an unapproved claim with no evidence at
// all; everything else is inferred.
func DeriveConfidenceTier(codeRefs []CodeRef, evidenceEventIDs []string, reviewStatus ReviewStatus, lastVerifiedAt *time.Time) ConfidenceTier {
	approved := reviewStatus == ReviewApproved
	verifiedRecently := lastVerifiedAt != nil && time.Since(*lastVerifiedAt) <= 30*24*time.Hour

	switch {
	case approved && (len(codeRefs) > 0 || verifiedRecently):
		return TierGrounded
	case len(evidenceEventIDs) > 0:
		return TierObserved
	case !approved:
		return TierHypothesis
	default:
		return TierInferred
	}
}

func insertObject(tx *sql.Tx, obj *MemoryObject) error {
	var scopePath interface{}
	if obj.Scope.Path != "" {
		scopePath = obj.Scope.Path
	}
	var reviewedAt interface{}
	if obj.ReviewedAt != nil {
		reviewedAt = *obj.ReviewedAt
	}
	var lastReinforced interface{}
	if obj.LastReinforcedAt != nil {
		lastReinforced = *obj.LastReinforcedAt
	}
	var lastVerified interface{}
	if obj.LastVerifiedAt != nil {
		lastVerified = *obj.LastVerifiedAt
	}

	_, err := tx.Exec(`
		INSERT INTO memory_objects (
			id, content, object_type, scope_type, scope_path, status,
			confidence, confidence_tier, supersedes, superseded_by,
			evidence_event_ids, evidence_excerpt, code_refs, review_status,
			reviewed_at, created_at, updated_at, last_accessed, access_count,
			strength, last_reinforced_at, outcome_score, last_verified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		obj.ID, obj.Content, string(obj.ObjectType), string(obj.Scope.Type), scopePath, string(obj.Status),
		string(obj.Confidence), string(obj.ConfidenceTier), mustJSON(obj.Supersedes), nullableString(obj.SupersededBy),
		mustJSON(obj.EvidenceEventIDs), obj.EvidenceExcerpt, mustJSON(obj.CodeRefs), string(obj.ReviewStatus),
		reviewedAt, obj.CreatedAt, obj.UpdatedAt, obj.LastAccessed, obj.AccessCount,
		obj.Strength, lastReinforced, obj.OutcomeScore, lastVerified,
	)
	return err
}

// Get fetches a memory object by id.
func (o *Objects) Get(id string) (*MemoryObject, error) {
	row := o.db.sql.QueryRow(objectSelectQuery+" WHERE id = ?", id)
	obj, err := scanObject(row)
	if err == sql.ErrNoRows {
		return nil, errs.E("store.Objects.Get", errs.NotFound, fmt.Errorf("memory object %s not found", id))
	}
	if err != nil {
		return nil, errs.E("store.Objects.Get", errs.Storage, err)
	}
	return obj, nil
}

// List returns memory objects matching filter.
func (o *Objects) List(filter ObjectFilter) ([]*MemoryObject, error) {
	query := objectSelectQuery + " WHERE 1=1"
	var args []interface{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.ObjectType != "" {
		query += " AND object_type = ?"
		args = append(args, string(filter.ObjectType))
	}
	if filter.ScopeType != "" {
		query += " AND scope_type = ?"
		args = append(args, string(filter.ScopeType))
	}
	if filter.ScopePath != "" {
		query += " AND scope_path = ?"
		args = append(args, filter.ScopePath)
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := o.db.sql.Query(query, args...)
	if err != nil {
		return nil, errs.E("store.Objects.List", errs.Storage, err)
	}
	defer rows.Close()

	var out []*MemoryObject
	for rows.Next() {
		obj, err := scanObjectRows(rows)
		if err != nil {
			return nil, errs.E("store.Objects.List", errs.Storage, err)
		}
		out = append(out, obj)
	}
	return out, nil
}

// ObjectPatch is a partial update to a memory object. Nil fields are left
// untouched. confidence_tier is never patched directly; it is recomputed
// whenever CodeRefs, EvidenceEventIDs, ReviewStatus, or LastVerifiedAt are
// part of the patch.
type ObjectPatch struct {
	Content          *string
	Status           *Status
	Confidence       *Confidence
	ReviewStatus     *ReviewStatus
	CodeRefs         *[]CodeRef
	EvidenceEventIDs *[]string
	LastVerifiedAt   *time.Time
	OutcomeScore     *float64
	Strength         *float64
}

// Update applies a partial patch, bumping updated_at and recomputing
// confidence_tier whenever the patch touches one of its inputs.
func (o *Objects) Update(id string, patch ObjectPatch) (*MemoryObject, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, string(*patch.Confidence))
	}
	if patch.ReviewStatus != nil {
		sets = append(sets, "review_status = ?")
		args = append(args, string(*patch.ReviewStatus))
	}
	if patch.CodeRefs != nil {
		sets = append(sets, "code_refs = ?")
		args = append(args, mustJSON(*patch.CodeRefs))
	}
	if patch.EvidenceEventIDs != nil {
		sets = append(sets, "evidence_event_ids = ?")
		args = append(args, mustJSON(*patch.EvidenceEventIDs))
	}
	if patch.LastVerifiedAt != nil {
		sets = append(sets, "last_verified_at = ?")
		args = append(args, *patch.LastVerifiedAt)
	}
	if patch.OutcomeScore != nil {
		sets = append(sets, "outcome_score = ?")
		args = append(args, *patch.OutcomeScore)
	}
	if patch.Strength != nil {
		sets = append(sets, "strength = ?")
		args = append(args, *patch.Strength)
	}

	if patch.CodeRefs != nil || patch.EvidenceEventIDs != nil || patch.ReviewStatus != nil || patch.LastVerifiedAt != nil {
		current, err := o.Get(id)
		if err != nil {
			return nil, err
		}
		codeRefs := current.CodeRefs
		if patch.CodeRefs != nil {
			codeRefs = *patch.CodeRefs
		}
		evidenceEventIDs := current.EvidenceEventIDs
		if patch.EvidenceEventIDs != nil {
			evidenceEventIDs = *patch.EvidenceEventIDs
		}
		reviewStatus := current.ReviewStatus
		if patch.ReviewStatus != nil {
			reviewStatus = *patch.ReviewStatus
		}
		lastVerifiedAt := current.LastVerifiedAt
		if patch.LastVerifiedAt != nil {
			lastVerifiedAt = patch.LastVerifiedAt
		}
		tier := DeriveConfidenceTier(codeRefs, evidenceEventIDs, reviewStatus, lastVerifiedAt)
		sets = append(sets, "confidence_tier = ?")
		args = append(args, string(tier))
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE memory_objects SET %s WHERE id = ?", strings.Join(sets, ", "))

	tx, err := o.db.Begin()
	if err != nil {
		return nil, errs.E("store.Objects.Update", errs.Storage, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(query, args...)
	if err != nil {
		return nil, errs.E("store.Objects.Update", errs.Storage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errs.E("store.Objects.Update", errs.NotFound, fmt.Errorf("memory object %s not found", id))
	}

	if patch.Content != nil {
		if _, err := tx.Exec(`UPDATE memory_objects_fts SET content = ? WHERE id = ?`, *patch.Content, id); err != nil {
			log.Warn("memory_objects_fts update failed", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.E("store.Objects.Update", errs.Storage, err)
	}
	return o.Get(id)
}

// Supersede atomically creates a successor object, marks old superseded,
// and links both directions. It refuses to create a supersession cycle by
// walking superseded_by from the proposed id before committing.
func (o *Objects) Supersede(oldID string, next *MemoryObject, tokens []string) (*MemoryObject, error) {
	old, err := o.Get(oldID)
	if err != nil {
		return nil, err
	}
	if old.Status == StatusRetired {
		return nil, errs.E("store.Objects.Supersede", errs.Conflict, fmt.Errorf("memory object %s is retired", oldID))
	}

	created, err := o.Create(next, tokens)
	if err != nil {
		return nil, err
	}

	if err := o.checkAcyclic(oldID, created.ID); err != nil {
		_ = o.hardDelete(created.ID)
		return nil, errs.E("store.Objects.Supersede", errs.Conflict, err)
	}

	tx, err := o.db.Begin()
	if err != nil {
		return nil, errs.E("store.Objects.Supersede", errs.Storage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE memory_objects SET status = ?, superseded_by = ?, updated_at = ? WHERE id = ?`,
		string(StatusSuperseded), created.ID, time.Now().UTC(), oldID); err != nil {
		return nil, errs.E("store.Objects.Supersede", errs.Storage, err)
	}

	newSupersedes := append(append([]string{}, created.Supersedes...), oldID)
	if _, err := tx.Exec(`UPDATE memory_objects SET supersedes = ? WHERE id = ?`, mustJSON(newSupersedes), created.ID); err != nil {
		return nil, errs.E("store.Objects.Supersede", errs.Storage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.E("store.Objects.Supersede", errs.Storage, err)
	}

	return o.Get(created.ID)
}

// checkAcyclic walks superseded_by starting at candidateSuccessorID and
// fails if it ever reaches rootID, which would close a supersession loop.
func (o *Objects) checkAcyclic(rootID, candidateSuccessorID string) error {
	seen := map[string]bool{}
	cur := candidateSuccessorID
	for i := 0; i < 1000; i++ {
		if cur == rootID {
			return fmt.Errorf("supersession cycle detected at %s", rootID)
		}
		if seen[cur] {
			return nil
		}
		seen[cur] = true

		var next sql.NullString
		err := o.db.sql.QueryRow(`SELECT superseded_by FROM memory_objects WHERE id = ?`, cur).Scan(&next)
		if err != nil || !next.Valid || next.String == "" {
			return nil
		}
		cur = next.String
	}
	return fmt.Errorf("supersession chain exceeds bound, suspected cycle at %s", rootID)
}

func (o *Objects) hardDelete(id string) error {
	_, err := o.db.sql.Exec(`DELETE FROM memory_objects WHERE id = ?`, id)
	return err
}

// Retire marks an object retired; retired objects are excluded from
// retrieval and the Conflict Detector.
func (o *Objects) Retire(id string) error {
	status := StatusRetired
	_, err := o.Update(id, ObjectPatch{Status: &status})
	return err
}

// Verify bumps last_verified_at, approves a pending review, and recomputes
// confidence_tier (the path by which a tier reaches grounded via
// verification rather than code_refs), used when a human or an agent
// confirms an object still holds.
func (o *Objects) Verify(id string) (*MemoryObject, error) {
	current, err := o.Get(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reviewStatus := current.ReviewStatus
	if reviewStatus == ReviewPending {
		reviewStatus = ReviewApproved
	}
	tier := DeriveConfidenceTier(current.CodeRefs, current.EvidenceEventIDs, reviewStatus, &now)

	_, err = o.db.sql.Exec(
		`UPDATE memory_objects SET last_verified_at = ?, review_status = ?, confidence_tier = ?, updated_at = ? WHERE id = ?`,
		now, string(reviewStatus), string(tier), now, id,
	)
	if err != nil {
		return nil, errs.E("store.Objects.Verify", errs.Storage, err)
	}
	return o.Get(id)
}

// Reinforce sets strength/outcome_score/last_accessed/access_count as part
// of a retrieval reinforcement pass. Called by the retriever, not exposed
// as a standalone CLI/API operation.
func (o *Objects) Reinforce(id string, newStrength float64, newOutcome *float64) error {
	now := time.Now().UTC()
	if newOutcome != nil {
		_, err := o.db.sql.Exec(`
			UPDATE memory_objects
			SET strength = ?, outcome_score = ?, last_accessed = ?, last_reinforced_at = ?, access_count = access_count + 1
			WHERE id = ?
		`, newStrength, *newOutcome, now, now, id)
		return err
	}
	_, err := o.db.sql.Exec(`
		UPDATE memory_objects
		SET strength = ?, last_accessed = ?, last_reinforced_at = ?, access_count = access_count + 1
		WHERE id = ?
	`, newStrength, now, now, id)
	return err
}

const objectSelectQuery = `
	SELECT id, content, object_type, scope_type, scope_path, status,
		confidence, confidence_tier, supersedes, superseded_by,
		evidence_event_ids, evidence_excerpt, code_refs, review_status,
		reviewed_at, created_at, updated_at, last_accessed, access_count,
		strength, last_reinforced_at, outcome_score, last_verified_at
	FROM memory_objects`

func scanObject(row rowScanner) (*MemoryObject, error) { return scanObjectRows(row) }

func scanObjectRows(row rowScanner) (*MemoryObject, error) {
	var obj MemoryObject
	var objectType, scopeType, status, confidence, confidenceTier, reviewStatus string
	var scopePath, supersededBy sql.NullString
	var supersedesJSON, evidenceEventIDsJSON, codeRefsJSON string
	var reviewedAt, lastReinforcedAt, lastVerifiedAt sql.NullTime

	err := row.Scan(
		&obj.ID, &obj.Content, &objectType, &scopeType, &scopePath, &status,
		&confidence, &confidenceTier, &supersedesJSON, &supersededBy,
		&evidenceEventIDsJSON, &obj.EvidenceExcerpt, &codeRefsJSON, &reviewStatus,
		&reviewedAt, &obj.CreatedAt, &obj.UpdatedAt, &obj.LastAccessed, &obj.AccessCount,
		&obj.Strength, &lastReinforcedAt, &obj.OutcomeScore, &lastVerifiedAt,
	)
	if err != nil {
		return nil, err
	}

	obj.ObjectType = ObjectType(objectType)
	obj.Scope = Scope{Type: ScopeType(scopeType), Path: scopePath.String}
	obj.Status = Status(status)
	obj.Confidence = Confidence(confidence)
	obj.ConfidenceTier = ConfidenceTier(confidenceTier)
	obj.SupersededBy = supersededBy.String
	obj.ReviewStatus = ReviewStatus(reviewStatus)

	_ = json.Unmarshal([]byte(supersedesJSON), &obj.Supersedes)
	_ = json.Unmarshal([]byte(evidenceEventIDsJSON), &obj.EvidenceEventIDs)
	_ = json.Unmarshal([]byte(codeRefsJSON), &obj.CodeRefs)

	if reviewedAt.Valid {
		obj.ReviewedAt = &reviewedAt.Time
	}
	if lastReinforcedAt.Valid {
		obj.LastReinforcedAt = &lastReinforcedAt.Time
	}
	if lastVerifiedAt.Valid {
		obj.LastVerifiedAt = &lastVerifiedAt.Time
	}

	return &obj, nil
}
