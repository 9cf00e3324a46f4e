// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists ranked study sites in DuckDB.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the duckdb driver
	"github.com/jcodagnone/geosites/pipeline"
	"github.com/jcodagnone/geosites/spatial"
	"github.com/uber/h3-go/v4"
)

// CellResolutions are the H3 resolutions stored with every site.
var CellResolutions = []int{3, 5, 7}

// ErrUnsupportedCell is returned when filtering by a cell whose resolution
// is not stored.
var ErrUnsupportedCell = errors.New("unsupported h3 cell")

// Site is one persisted ranked entity.
type Site struct {
	ID          int           `json:"id"`
	RunID       string        `json:"run_id"`
	DocumentID  string        `json:"document_id"`
	Rank        int           `json:"rank"`
	Name        string        `json:"name"`
	EntityType  string        `json:"entity_type"`
	Section     string        `json:"section"`
	Method      string        `json:"extraction_method"`
	Confidence  float64       `json:"confidence"`
	Score       float64       `json:"score"`
	ClusterID   *int          `json:"cluster_label,omitempty"`
	ClusterSize int           `json:"cluster_size"`
	Point       spatial.Point `json:"coordinates"`
	CreatedAt   time.Time     `json:"created_at"`
	H3Res3      int64         `json:"-"`
	H3Res5      int64         `json:"-"`
	H3Res7      int64         `json:"-"`
}

func (s *Site) computeH3() error {
	for _, res := range CellResolutions {
		cell, err := s.Point.Cell(res)
		if err != nil {
			return err
		}

		switch res {
		case 3:
			s.H3Res3 = int64(cell)
		case 5:
			s.H3Res5 = int64(cell)
		case 7:
			s.H3Res7 = int64(cell)
		}
	}

	return nil
}

// Filter narrows site listings. Zero values match everything; a zero Limit
// returns all rows.
type Filter struct {
	DocumentID string
	// Cell is an H3 index in hex form at one of CellResolutions.
	Cell   string
	Limit  int
	Offset int
}

func (f Filter) where() (string, []any, error) {
	var (
		clauses []string
		args    []any
	)

	if f.DocumentID != "" {
		clauses = append(clauses, "document_id = ?")
		args = append(args, f.DocumentID)
	}

	if f.Cell != "" {
		cell := h3.Cell(h3.IndexFromString(f.Cell))
		if !cell.IsValid() {
			return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedCell, f.Cell)
		}

		res := cell.Resolution()

		switch res {
		case 3, 5, 7:
			clauses = append(clauses, fmt.Sprintf("h3_res%d = ?", res))
			args = append(args, int64(cell))
		default:
			return "", nil, fmt.Errorf("%w: resolution %d", ErrUnsupportedCell, res)
		}
	}

	if len(clauses) == 0 {
		return "", args, nil
	}

	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// SiteRepository handles persistence of ranked sites.
type SiteRepository interface {
	// CreateSchema creates the sites table
	CreateSchema() error

	// SaveResult replaces the sites of docID with the ranked entities of
	// result at or above minConfidence. It returns the number of rows written.
	SaveResult(docID string, result *pipeline.ExtractionResult, minConfidence float64) (int, error)

	// ListSites returns sites ordered by document and rank
	ListSites(filter Filter) ([]*Site, error)

	// CountSites counts the sites matching filter, ignoring its paging
	CountSites(filter Filter) (int, error)

	// ExportJSON writes the matching sites as a JSON array
	ExportJSON(w io.Writer, filter Filter) error

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlSiteRepository struct {
	db *sql.DB
}

// NewSiteRepository creates a new site repository.
func NewSiteRepository(db *sql.DB) SiteRepository {
	return &sqlSiteRepository{db: db}
}

// Open opens a DuckDB database at path (in memory when empty) and makes sure
// the schema exists.
func Open(path string) (SiteRepository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	repo := NewSiteRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return repo, nil
}

func (r *sqlSiteRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlSiteRepository) CreateSchema() error {
	// DuckDB needs to load the spatial extension
	_, err := r.db.Exec(`INSTALL spatial; LOAD spatial;`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE SEQUENCE IF NOT EXISTS sites_seq START 1;

		CREATE TABLE IF NOT EXISTS sites (
			id INTEGER PRIMARY KEY DEFAULT nextval('sites_seq'),
			run_id VARCHAR NOT NULL,
			document_id VARCHAR NOT NULL,
			rank INTEGER NOT NULL,
			name VARCHAR NOT NULL,
			entity_type VARCHAR NOT NULL,
			section VARCHAR NOT NULL,
			method VARCHAR NOT NULL,
			confidence DOUBLE NOT NULL,
			score DOUBLE NOT NULL,
			cluster_id INTEGER,
			cluster_size INTEGER NOT NULL,
			point POINT_2D NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			h3_res3 UBIGINT,
			h3_res5 UBIGINT,
			h3_res7 UBIGINT,
			UNIQUE(document_id, rank)
		);
	`)

	return err
}

func (r *sqlSiteRepository) SaveResult(docID string, result *pipeline.ExtractionResult, minConfidence float64) (int, error) {
	if docID == "" {
		return 0, errors.New("document id can't be empty")
	}

	now := time.Now()

	var sites []*Site

	for i, re := range result.Sites(minConfidence) {
		e := re.Entity

		site := &Site{
			RunID:       result.RunID,
			DocumentID:  docID,
			Rank:        i + 1,
			Name:        e.Text,
			EntityType:  string(e.Type),
			Section:     e.Section,
			Method:      string(e.Method),
			Confidence:  e.Confidence,
			Score:       re.Score,
			ClusterID:   e.Cluster,
			ClusterSize: re.ClusterSize,
			Point:       *e.Point,
			CreatedAt:   now,
		}
		if err := site.computeH3(); err != nil {
			return 0, fmt.Errorf("site %q: %w", site.Name, err)
		}

		sites = append(sites, site)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}

	if _, err = tx.Exec(`DELETE FROM sites WHERE document_id = ?`, docID); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			err = rErr
		}

		return 0, err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sites(
			run_id,
			document_id,
			rank,
			name,
			entity_type,
			section,
			method,
			confidence,
			score,
			cluster_id,
			cluster_size,
			point,
			created_at,
			h3_res3,
			h3_res5,
			h3_res7
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ST_Point(?, ?), ?, ?, ?, ?)
	`)
	if err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			err = rErr
		}

		return 0, err
	}
	defer stmt.Close()

	for _, s := range sites {
		_, err = stmt.Exec(
			s.RunID,
			s.DocumentID,
			s.Rank,
			s.Name,
			s.EntityType,
			s.Section,
			s.Method,
			s.Confidence,
			s.Score,
			s.ClusterID,
			s.ClusterSize,
			s.Point.Lng,
			s.Point.Lat,
			s.CreatedAt,
			s.H3Res3,
			s.H3Res5,
			s.H3Res7,
		)
		if err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				err = rErr
			}

			return 0, fmt.Errorf("inserting site %q: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(sites), nil
}

var baseSelect = `
	SELECT id, run_id, document_id, rank, name, entity_type, section, method,
	       confidence, score, cluster_id, cluster_size, point, created_at,
	       h3_res3, h3_res5, h3_res7
	FROM sites
`

func (r *sqlSiteRepository) ListSites(filter Filter) ([]*Site, error) {
	where, args, err := filter.where()
	if err != nil {
		return nil, err
	}

	query := baseSelect + where + " ORDER BY document_id, rank"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"

		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := []*Site{}

	for rows.Next() {
		site := &Site{}

		var cluster, h3Res3, h3Res5, h3Res7 sql.NullInt64

		err := rows.Scan(
			&site.ID, &site.RunID, &site.DocumentID, &site.Rank,
			&site.Name, &site.EntityType, &site.Section, &site.Method,
			&site.Confidence, &site.Score, &cluster, &site.ClusterSize,
			&site.Point, &site.CreatedAt,
			&h3Res3, &h3Res5, &h3Res7,
		)
		if err != nil {
			return nil, err
		}

		if cluster.Valid {
			c := int(cluster.Int64)
			site.ClusterID = &c
		}

		site.H3Res3 = h3Res3.Int64
		site.H3Res5 = h3Res5.Int64
		site.H3Res7 = h3Res7.Int64

		sites = append(sites, site)
	}

	return sites, rows.Err()
}

func (r *sqlSiteRepository) CountSites(filter Filter) (int, error) {
	where, args, err := filter.where()
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRow("SELECT COUNT(*) FROM sites"+where, args...).Scan(&count)

	return count, err
}

func (r *sqlSiteRepository) ExportJSON(w io.Writer, filter Filter) error {
	sites, err := r.ListSites(filter)
	if err != nil {
		return fmt.Errorf("listing sites: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(sites)
}
