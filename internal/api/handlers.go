package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ishaqmohammed8765-png/flipscan/internal/database"
	"github.com/ishaqmohammed8765-png/flipscan/internal/domain"
)

// handleOpportunities returns the latest evaluation per listing,
// filtered by decision and ranked by deal score.
func (s *Server) handleOpportunities(c *gin.Context) {
	decisions, ok := parseDecisions(c.DefaultQuery("decision", domain.DecisionDeal))
	if !ok {
		respondBadRequest(c, "decision must be a comma-separated subset of deal, maybe, ignore")
		return
	}
	limit := parseLimit(c, defaultOppLimit, maxOppLimit)

	opps, err := s.store.Evaluations.ListOpportunities(c.Request.Context(), decisions, limit)
	if err != nil {
		s.log.Error("failed to list opportunities", "error", err)
		respondInternalError(c, "failed to list opportunities")
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": opps, "count": len(opps)})
}

func (s *Server) handleTargets(c *gin.Context) {
	targets, err := s.store.Targets.ListAll(c.Request.Context())
	if err != nil {
		s.log.Error("failed to list targets", "error", err)
		respondInternalError(c, "failed to list targets")
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets, "count": len(targets)})
}

func (s *Server) handleTargetListings(c *gin.Context) {
	name := c.Param("name")
	target, err := s.store.Targets.GetByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, database.ErrTargetNotFound) {
			respondNotFound(c, "target")
			return
		}
		s.log.Error("failed to load target", "target", name, "error", err)
		respondInternalError(c, "failed to load target")
		return
	}

	limit := parseLimit(c, defaultOppLimit, maxOppLimit)
	listings, err := s.store.Listings.ListByTarget(c.Request.Context(), target.ID, limit)
	if err != nil {
		s.log.Error("failed to list listings", "target", name, "error", err)
		respondInternalError(c, "failed to list listings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"target": target, "listings": listings, "count": len(listings)})
}

// handleSummary returns the last completed scan cycle, or 404 when no
// cycle has run in this process yet.
func (s *Server) handleSummary(c *gin.Context) {
	if s.summaries == nil {
		respondNotFound(c, "scan summary")
		return
	}
	summary := s.summaries.LastSummary()
	if summary == nil {
		respondNotFound(c, "scan summary")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// parseDecisions validates a comma-separated decision filter.
func parseDecisions(raw string) ([]string, bool) {
	parts := strings.Split(raw, ",")
	decisions := make([]string, 0, len(parts))
	for _, part := range parts {
		decision := strings.TrimSpace(strings.ToLower(part))
		if decision == "" {
			continue
		}
		switch decision {
		case domain.DecisionDeal, domain.DecisionMaybe, domain.DecisionIgnore:
			decisions = append(decisions, decision)
		default:
			return nil, false
		}
	}
	if len(decisions) == 0 {
		return nil, false
	}
	return decisions, true
}

// parseLimit parses the limit query param, clamped to maxLimit.
func parseLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	raw := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// respondError sends a JSON error response.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func respondNotFound(c *gin.Context, resource string) {
	respondError(c, http.StatusNotFound, resource+" not found")
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message)
}

func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message)
}
