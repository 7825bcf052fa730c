// Package store implements the Profile Store (spec §4.H): an embedded
// badgerhold-backed document store with five collections, upsert-by-key
// semantics throughout.
package store

import (
	"fmt"
	"os"

	"github.com/timshannon/badgerhold/v4"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// profileRecord wraps a Document so badgerhold can index it by CIK
// without requiring an exported Key field on the public type.
type profileRecord struct {
	CIK        string `badgerholdKey:"CIK"`
	Document   profile.Document
	LastUpdated int64 `badgerholdIndex:"LastUpdated"`
}

type edgeRecord struct {
	Key  string `badgerholdKey:"Key"`
	Edge profile.RelationshipEdge
}

type financialRelRecord struct {
	CIK     string `badgerholdKey:"CIK"`
	Record  profile.FinancialRelationships
}

type interlockRecord struct {
	PersonName string `badgerholdKey:"PersonName"`
	CIKs       []string
}

type failureRecord struct {
	Ticker string `badgerholdKey:"Ticker"`
	Record profile.FailureRecord
}

// Store is the embedded document store backing the engine's five
// collections: profiles, company_relationships, financial_relationships,
// key_person_interlocks, failures.
type Store struct {
	db *badgerhold.Store
}

// Open opens (or creates) the badger-backed store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = nil

	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertProfile stores doc keyed by CIK, replacing any prior profile
// for that company in full (spec §3 "replaced, never partially
// mutated, on re-aggregation").
func (s *Store) UpsertProfile(doc profile.Document) error {
	rec := profileRecord{CIK: doc.CIK, Document: doc, LastUpdated: doc.LastUpdated.Unix()}
	return s.db.Upsert(doc.CIK, rec)
}

// GetProfile returns the stored profile for cik, or false if absent.
func (s *Store) GetProfile(cik string) (profile.Document, bool, error) {
	var rec profileRecord
	if err := s.db.Get(cik, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return profile.Document{}, false, nil
		}
		return profile.Document{}, false, fmt.Errorf("store: get profile: %w", err)
	}
	return rec.Document, true, nil
}

// ListProfilesByQuality returns every stored profile whose quality
// grade is at or below maxGrade (used by the Batch Controller's
// "retry all problematic" command).
func (s *Store) ListProfilesByQuality(maxGradeRank int, gradeRank func(grade string) int) ([]profile.Document, error) {
	var recs []profileRecord
	if err := s.db.Find(&recs, nil); err != nil {
		return nil, fmt.Errorf("store: list profiles: %w", err)
	}
	var out []profile.Document
	for _, r := range recs {
		if gradeRank(r.Document.Quality.Grade) <= maxGradeRank {
			out = append(out, r.Document)
		}
	}
	return out, nil
}

// UpsertEdge stores a relationship edge keyed by its (source, target,
// type) triple (spec §4.D, §4.H).
func (s *Store) UpsertEdge(edge profile.RelationshipEdge) error {
	return s.db.Upsert(edge.Key(), edgeRecord{Key: edge.Key(), Edge: edge})
}

// GetEdge returns the stored edge for key, or false if absent.
func (s *Store) GetEdge(key string) (profile.RelationshipEdge, bool, error) {
	var rec edgeRecord
	if err := s.db.Get(key, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return profile.RelationshipEdge{}, false, nil
		}
		return profile.RelationshipEdge{}, false, fmt.Errorf("store: get edge: %w", err)
	}
	return rec.Edge, true, nil
}

// UpsertFinancialRelationships stores a company's customer/supplier
// concentration record, keyed by cik.
func (s *Store) UpsertFinancialRelationships(rec profile.FinancialRelationships) error {
	return s.db.Upsert(rec.CIK, financialRelRecord{CIK: rec.CIK, Record: rec})
}

// UpsertKeyPersonInterlock records that personName is associated with
// cik, keyed by canonical person name (spec §4.H).
func (s *Store) UpsertKeyPersonInterlock(personName, cik string) error {
	var existing interlockRecord
	err := s.db.Get(personName, &existing)
	switch {
	case err == badgerhold.ErrNotFound:
		existing = interlockRecord{PersonName: personName, CIKs: []string{cik}}
	case err != nil:
		return fmt.Errorf("store: get interlock: %w", err)
	default:
		if !containsString(existing.CIKs, cik) {
			existing.CIKs = append(existing.CIKs, cik)
		}
	}
	return s.db.Upsert(personName, existing)
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SaveFailure implements validator.FailureStore.
func (s *Store) SaveFailure(rec profile.FailureRecord) error {
	return s.db.Upsert(rec.Ticker, failureRecord{Ticker: rec.Ticker, Record: rec})
}

// GetFailure implements validator.FailureStore.
func (s *Store) GetFailure(ticker string) (profile.FailureRecord, bool, error) {
	var rec failureRecord
	if err := s.db.Get(ticker, &rec); err != nil {
		if err == badgerhold.ErrNotFound {
			return profile.FailureRecord{}, false, nil
		}
		return profile.FailureRecord{}, false, fmt.Errorf("store: get failure: %w", err)
	}
	return rec.Record, true, nil
}

// ClearFailure implements validator.FailureStore.
func (s *Store) ClearFailure(ticker string) error {
	err := s.db.Delete(ticker, &failureRecord{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

// ListFailures returns every recorded failure, used by the Batch
// Controller's "retry all failed tickers" command.
func (s *Store) ListFailures() ([]profile.FailureRecord, error) {
	var recs []failureRecord
	if err := s.db.Find(&recs, nil); err != nil {
		return nil, fmt.Errorf("store: list failures: %w", err)
	}
	out := make([]profile.FailureRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Record
	}
	return out, nil
}
