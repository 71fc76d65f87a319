package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/newsdesk/internal/globaltime"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/pipeline"
	"horse.fit/newsdesk/internal/store"
)

const (
	defaultSearchK  = 5
	defaultRunLimit = 20
	maxRunLimit     = 200
	maxRelated      = 20
)

type askRequest struct {
	StoryID  string `json:"story_id"`
	Question string `json:"question" validate:"required,max=2000"`
}

type storyDetail struct {
	Story   news.Story          `json:"story"`
	Related []news.StorySummary `json:"related"`
}

type runOutcome struct {
	run news.Run
	err error
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request().Context()); err != nil {
			s.logger.Warn().Err(err).Msg("store health check failed")
			return serviceUnavailable(c, "Store unavailable")
		}
	}
	snapshot := s.desk.Gateway().Current(c.Request().Context())
	return success(c, map[string]any{
		"service":       "newsdesk",
		"time":          globaltime.UTC(),
		"generation_id": snapshot.ID,
		"stories":       snapshot.Len(),
	})
}

// handleCollect starts a run and answers 202 at once. With wait=true it
// blocks until the run finishes and reports its outcome.
func (s *Server) handleCollect(c echo.Context) error {
	wait, err := parseBool(c.QueryParam("wait"))
	if err != nil {
		return failValidation(c, map[string]string{"wait": err.Error()})
	}

	ctx, cancel := context.WithTimeout(s.base, s.opts.RunTimeout)
	outcome := make(chan runOutcome, 1)
	run, err := s.desk.Start(ctx, func(run news.Run, err error) {
		cancel()
		outcome <- runOutcome{run: run, err: err}
	})
	if err != nil {
		cancel()
		return s.respondError(c, err, "Failed to start collection")
	}

	if !wait {
		return successWithStatus(c, http.StatusAccepted, map[string]any{"run": run})
	}

	select {
	case result := <-outcome:
		if result.err != nil {
			return s.respondError(c, result.err, "Collection failed")
		}
		return success(c, map[string]any{"run": result.run})
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
}

func (s *Server) handleStories(c echo.Context) error {
	filter := store.ListFilter{Interest: strings.TrimSpace(c.QueryParam("interest"))}
	if raw := strings.TrimSpace(c.QueryParam("category")); raw != "" {
		category, ok := news.ParseCategory(raw)
		if !ok {
			return failValidation(c, map[string]string{"category": "must be one of World, US, Sports, Financial, Technology, Other"})
		}
		filter.Category = category
	}
	limit, err := parsePositiveInt(c.QueryParam("limit"), 0, 0, 10_000)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	filter.Limit = limit

	snapshot := s.desk.Gateway().Current(c.Request().Context())
	items := snapshot.List(filter)
	return success(c, map[string]any{
		"items":         items,
		"generation_id": snapshot.ID,
		"filters": map[string]any{
			"category": filter.Category,
			"interest": filter.Interest,
			"limit":    filter.Limit,
		},
	})
}

func (s *Server) handleStoryDetail(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return failValidation(c, map[string]string{"id": "is required"})
	}
	related, err := parsePositiveInt(c.QueryParam("related"), store.DefaultRelatedN, 0, maxRelated)
	if err != nil {
		return failValidation(c, map[string]string{"related": err.Error()})
	}

	gateway := s.desk.Gateway()
	story, err := gateway.Get(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err, "Failed to load story")
	}
	detail := storyDetail{Story: story, Related: []news.StorySummary{}}
	if related > 0 {
		similar, err := gateway.Related(c.Request().Context(), story.ID, related)
		if err != nil {
			s.logger.Warn().Err(err).Str("story_id", story.ID).Msg("related stories unavailable")
		} else {
			detail.Related = similar
		}
	}
	return success(c, detail)
}

func (s *Server) handleSearch(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return failValidation(c, map[string]string{"q": "is required"})
	}
	k, err := parsePositiveInt(c.QueryParam("k"), defaultSearchK, 1, 1_000)
	if err != nil {
		return failValidation(c, map[string]string{"k": err.Error()})
	}

	fragments, err := s.desk.Gateway().SearchContext(c.Request().Context(), query, k)
	if err != nil {
		return s.respondError(c, err, "Search failed")
	}
	return success(c, map[string]any{
		"items": fragments,
		"q":     query,
		"k":     k,
	})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "must be a JSON object"})
	}
	req.Question = strings.TrimSpace(req.Question)
	req.StoryID = strings.TrimSpace(req.StoryID)
	if err := c.Validate(&req); err != nil {
		return failValidation(c, validationErrors(err))
	}

	answer, err := s.desk.Answer(c.Request().Context(), pipeline.Question{StoryID: req.StoryID, Question: req.Question})
	if err != nil {
		return s.respondError(c, err, "Failed to answer question")
	}
	return success(c, answer)
}

func (s *Server) handleRuns(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultRunLimit, 1, maxRunLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	runs, err := s.desk.Gateway().Runs(c.Request().Context(), limit)
	if err != nil {
		return s.respondError(c, err, "Failed to load runs")
	}
	return success(c, map[string]any{"items": runs})
}

func (s *Server) handleReset(c echo.Context) error {
	if err := s.desk.Reset(c.Request().Context()); err != nil {
		return s.respondError(c, err, "Reset failed")
	}
	return success(c, map[string]any{"reset": true})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseBool(raw string) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(trimmed)
	if err != nil {
		return false, fmt.Errorf("must be true or false")
	}
	return value, nil
}
