// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the extraction pipeline and the site store over
// HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geosites/document"
	"github.com/jcodagnone/geosites/geocoding"
	"github.com/jcodagnone/geosites/pipeline"
	"github.com/jcodagnone/geosites/store"
)

const (
	maxDocumentBytes = 16 << 20
	defaultPerPage   = 50
	maxPerPage       = 1000
)

// StatsSource reports geocoder counters.
type StatsSource interface {
	Stats() geocoding.Stats
}

// Server exposes the extraction pipeline, the stored sites and the geocoder
// counters over HTTP.
type Server struct {
	orchestrator *pipeline.Orchestrator
	sites        store.SiteRepository
	stats        StatsSource
}

// NewServer returns a server running documents through orchestrator. sites
// and stats may be nil; the endpoints needing them then answer 503.
func NewServer(orchestrator *pipeline.Orchestrator, sites store.SiteRepository, stats StatsSource) *Server {
	return &Server{orchestrator: orchestrator, sites: sites, stats: stats}
}

// Router returns the engine with every API route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	r.POST("/api/extract", s.extract)
	r.GET("/api/sites", s.listSites)
	r.GET("/api/geocoder/stats", s.geocoderStats)

	return r
}

// Run serves the API on addr and blocks until the listener fails.
func (s *Server) Run(addr string) error {
	log.Printf("📍 Listening on %s", addr)

	return s.Router().Run(addr)
}

// extract runs one document given as JSON. With persist=true the ranked
// sites at or above min_confidence (the configured threshold by default)
// replace the document's stored sites.
func (s *Server) extract(ctx *gin.Context) {
	body := http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxDocumentBytes)

	doc, err := document.ReadJSON(body)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	persist := ctx.Query("persist") == "true"
	if persist && s.sites == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "site store not configured"})

		return
	}

	minConfidence := s.orchestrator.Config().MinConfidence

	if v := ctx.Query("min_confidence"); v != "" {
		minConfidence, err = strconv.ParseFloat(v, 64)
		if err != nil || minConfidence < 0 || minConfidence > 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be a number within [0,1]"})

			return
		}
	}

	result, err := s.orchestrator.Run(ctx.Request.Context(), pipeline.StaticLoader(doc))
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrParseUnavailable):
			ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}

		return
	}

	if !persist {
		ctx.JSON(http.StatusOK, gin.H{"result": result})

		return
	}

	docID := doc.ID
	if docID == "" {
		docID = result.RunID
	}

	saved, err := s.sites.SaveResult(docID, result, minConfidence)
	if err != nil {
		log.Printf("⚠️ Saving sites of %s failed: %v", docID, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"result":      result,
		"document_id": docID,
		"saved":       saved,
	})
}

func (s *Server) listSites(ctx *gin.Context) {
	if s.sites == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "site store not configured"})

		return
	}

	limit := defaultPerPage
	offset := 0

	if v := ctx.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})

			return
		}

		limit = min(n, maxPerPage)
	}

	if v := ctx.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset parameter"})

			return
		}

		offset = n
	}

	filter := store.Filter{
		DocumentID: ctx.Query("document"),
		Cell:       ctx.Query("cell"),
		Limit:      limit,
		Offset:     offset,
	}

	sites, err := s.sites.ListSites(filter)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrUnsupportedCell) {
			status = http.StatusBadRequest
		}

		ctx.JSON(status, gin.H{"error": err.Error()})

		return
	}

	total, err := s.sites.CountSites(filter)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"sites":  sites,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) geocoderStats(ctx *gin.Context) {
	if s.stats == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "geocoding disabled"})

		return
	}

	ctx.JSON(http.StatusOK, s.stats.Stats())
}
