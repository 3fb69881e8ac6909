// Package neo4jstore is the bolt-backed implementation of graph.Store.
//
// All writes are MERGE-based so replays and racing inserts collapse into
// no-ops; uniqueness is enforced by the node keys, not application locking.
package neo4jstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	cratespro "github.com/crates-pro/crates-pro"
	"github.com/crates-pro/crates-pro/graph"
)

var (
	queryCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cratespro",
			Subsystem: "graph",
			Name:      "query_total",
			Help:      "Total number of graph queries issued per store method.",
		},
		[]string{"query"},
	)
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cratespro",
			Subsystem: "graph",
			Name:      "query_duration_seconds",
			Help:      "The duration of graph queries issued per store method.",
		},
		[]string{"query"},
	)
)

var _ graph.Store = (*Store)(nil)

// Store talks to a neo4j-compatible graph over bolt.
type Store struct {
	driver neo4j.DriverWithContext
	db     string
}

// Connect dials the bolt endpoint and verifies connectivity.
func Connect(ctx context.Context, uri, user, password, database string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: creating driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("neo4jstore: verifying connectivity: %w", err)
	}
	zlog.Info(ctx).Str("uri", uri).Str("database", database).Msg("graph store connected")
	return &Store{driver: driver, db: database}, nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) write(ctx context.Context, name, cypher string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.db,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)
	start := time.Now()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return nil, res.Err()
	})
	queryCounter.WithLabelValues(name).Add(1)
	queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("neo4jstore: %s: %w", name, err)
	}
	return nil
}

func (s *Store) readStrings(ctx context.Context, name, cypher string, params map[string]any) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.db,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)
	start := time.Now()
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var keys []string
		for res.Next(ctx) {
			if v, ok := res.Record().Values[0].(string); ok {
				keys = append(keys, v)
			}
		}
		return keys, res.Err()
	})
	queryCounter.WithLabelValues(name).Add(1)
	queryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: %s: %w", name, err)
	}
	return out.([]string), nil
}

// UpsertProgram implements graph.Store.
func (s *Store) UpsertProgram(ctx context.Context, p *cratespro.Program) error {
	const base = `
	MERGE (p:Program {id: $id})
	ON CREATE SET p.name = $name, p.description = $description,
		p.namespace = $namespace, p.max_version = $max_version,
		p.github_url = $github_url, p.mega_url = $mega_url,
		p.doc_url = $doc_url
	`
	const libType = `
	MERGE (t:Library {id: $id})
	ON CREATE SET t.name = $name
	WITH t
	MATCH (p:Program {id: $id})
	MERGE (p)-[:has_type]->(t)
	`
	const appType = `
	MERGE (t:Application {id: $id})
	ON CREATE SET t.name = $name
	WITH t
	MATCH (p:Program {id: $id})
	MERGE (p)-[:has_type]->(t)
	`
	params := map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"namespace":   p.Namespace,
		"max_version": p.MaxVersion,
		"github_url":  p.GithubURL,
		"mega_url":    p.MegaURL,
		"doc_url":     p.DocURL,
	}
	if err := s.write(ctx, "upsert_program", base, params); err != nil {
		return err
	}
	typed := appType
	if p.Kind == cratespro.Library {
		typed = libType
	}
	return s.write(ctx, "upsert_program_type", typed, params)
}

// UpsertVersion implements graph.Store.
func (s *Store) UpsertVersion(ctx context.Context, v *cratespro.Version, deps []cratespro.Dependency) error {
	const libVersion = `
	MERGE (v:Version {name_and_version: $key})
	MERGE (tv:LibraryVersion {name_and_version: $key})
	ON CREATE SET tv.id = $id, tv.name = $name, tv.version = $version,
		tv.documentation = $documentation
	WITH v
	MATCH (t:Library {id: $id})
	MERGE (t)-[:has_version]->(v)
	MERGE (v)-[:has_dep_version]->(v)
	`
	const appVersion = `
	MERGE (v:Version {name_and_version: $key})
	MERGE (tv:ApplicationVersion {name_and_version: $key})
	ON CREATE SET tv.id = $id, tv.name = $name, tv.version = $version
	WITH v
	MATCH (t:Application {id: $id})
	MERGE (t)-[:has_version]->(v)
	MERGE (v)-[:has_dep_version]->(v)
	`
	const dependsOn = `
	MATCH (v:Version {name_and_version: $key})
	UNWIND $deps AS dep
	MERGE (d:Version {name_and_version: dep})
	MERGE (v)-[:depends_on]->(d)
	`
	cypher := appVersion
	if v.Kind == cratespro.Library {
		cypher = libVersion
	}
	err := s.write(ctx, "upsert_version", cypher, map[string]any{
		"key":           v.Key,
		"id":            v.ProgramID,
		"name":          v.Name,
		"version":       v.Version,
		"documentation": v.Documentation,
	})
	if err != nil {
		return err
	}
	if len(deps) == 0 {
		return nil
	}
	targets := make([]string, len(deps))
	for i, d := range deps {
		targets[i] = cratespro.VersionKey(d.Name, d.Version)
	}
	return s.write(ctx, "upsert_depends_on", dependsOn, map[string]any{
		"key":  v.Key,
		"deps": targets,
	})
}

// ProgramByName implements graph.Store.
func (s *Store) ProgramByName(ctx context.Context, name string) (*cratespro.Program, error) {
	const query = `
	MATCH (p:Program {name: $name})
	OPTIONAL MATCH (p)-[:has_type]->(t)
	RETURN p.id, p.name, p.description, p.namespace, p.max_version,
		p.github_url, p.mega_url, p.doc_url, labels(t) AS type_labels
	LIMIT 1
	`
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.db,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)
	start := time.Now()
	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, graph.ErrNotFound
		}
		p := &cratespro.Program{
			ID:          str(rec.Values[0]),
			Name:        str(rec.Values[1]),
			Description: str(rec.Values[2]),
			Namespace:   str(rec.Values[3]),
			MaxVersion:  str(rec.Values[4]),
			GithubURL:   str(rec.Values[5]),
			MegaURL:     str(rec.Values[6]),
			DocURL:      str(rec.Values[7]),
			Kind:        cratespro.Application,
		}
		if labels, ok := rec.Values[8].([]any); ok {
			for _, l := range labels {
				if l == "Library" {
					p.Kind = cratespro.Library
				}
			}
		}
		return p, nil
	})
	queryCounter.WithLabelValues("program_by_name").Add(1)
	queryDuration.WithLabelValues("program_by_name").Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, graph.ErrNotFound) {
			return nil, graph.ErrNotFound
		}
		return nil, fmt.Errorf("neo4jstore: program_by_name: %w", err)
	}
	return out.(*cratespro.Program), nil
}

// DirectDependencies implements graph.Querier.
func (s *Store) DirectDependencies(ctx context.Context, key string) ([]string, error) {
	const query = `
	MATCH (:Version {name_and_version: $key})-[:depends_on]->(d:Version)
	RETURN d.name_and_version
	`
	return s.readStrings(ctx, "direct_dependencies", query, map[string]any{"key": key})
}

// DirectDependents implements graph.Querier.
func (s *Store) DirectDependents(ctx context.Context, key string) ([]string, error) {
	const query = `
	MATCH (d:Version)-[:depends_on]->(:Version {name_and_version: $key})
	RETURN d.name_and_version
	`
	return s.readStrings(ctx, "direct_dependents", query, map[string]any{"key": key})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
