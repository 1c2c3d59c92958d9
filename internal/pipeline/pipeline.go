// Package pipeline implements the sales pipeline: stage movement for
// opportunity projects, the Kanban board grouping, and derived metrics.
package pipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/store"
)

// Placeholder rates surfaced on the metrics card. No formula backs them
// yet; they ship as fixed values until real funnel tracking lands.
const (
	ConversionRate = 68
	WinRate        = 42
)

// Metrics is the derived snapshot for the pipeline dashboard. It is
// recomputed on every call and never stored.
type Metrics struct {
	TotalValue      float64        `json:"total_value"`
	WeightedValue   float64        `json:"weighted_value"`
	RevenueForecast float64        `json:"revenue_forecast"`
	ConversionRate  int            `json:"conversion_rate"`
	WinRate         int            `json:"win_rate"`
	TotalCount      int            `json:"total_count"`
	StageCounts     map[string]int `json:"stage_counts"`
}

// Column is one board column: a configured stage and the opportunities
// currently in it.
type Column struct {
	Stage    models.PipelineStage `json:"stage"`
	Projects []models.Project     `json:"projects"`
}

// Service exposes pipeline operations over the store.
type Service struct {
	store store.Store
}

// NewService creates a pipeline service.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Board loads the configured stages and partitions the tenant's pipeline
// projects into one column per stage. Stage names match
// case-insensitively; a project whose stage matches no column is dropped
// from the board (it still counts in metrics).
func (s *Service) Board(ctx context.Context, userID uuid.UUID) ([]Column, error) {
	stages, err := s.store.ListPipelineStages(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx, userID, store.ListOptions{Status: models.ProjectStatusPipeline})
	if err != nil {
		return nil, err
	}
	return Group(stages, projects), nil
}

// Group partitions projects into columns by stage name, case-insensitive.
func Group(stages []models.PipelineStage, projects []models.Project) []Column {
	columns := make([]Column, len(stages))
	for i, stage := range stages {
		columns[i] = Column{Stage: stage, Projects: []models.Project{}}
	}
	for _, p := range projects {
		if p.PipelineStage == nil {
			continue
		}
		for i, stage := range stages {
			if strings.EqualFold(stage.Name, *p.PipelineStage) {
				columns[i].Projects = append(columns[i].Projects, p)
				break
			}
		}
	}
	return columns
}

// MoveStage moves an opportunity to a stage. The board is an open Kanban:
// any stage is reachable from any stage, nothing is rejected by source
// stage. Only pipeline projects can move; a nil probability keeps the
// current one.
func (s *Service) MoveStage(ctx context.Context, userID, projectID uuid.UUID, stage string, probability *int) (*models.Project, error) {
	project, err := s.store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status != models.ProjectStatusPipeline {
		return nil, errors.NewValidationError("status", "project is not in the pipeline")
	}

	current := models.DefaultDealProbability
	if project.DealProbability != nil {
		current = *project.DealProbability
	}
	if probability != nil {
		current = *probability
	}

	models.PipelineLifecycle(stage, current).Apply(project)
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// ComputeMetrics derives the dashboard numbers from pipeline projects.
// weighted value uses each deal's probability; a missing probability
// weighs zero.
func ComputeMetrics(projects []models.Project) Metrics {
	m := Metrics{
		ConversionRate: ConversionRate,
		WinRate:        WinRate,
		StageCounts:    map[string]int{},
	}
	for _, p := range projects {
		if p.Status != models.ProjectStatusPipeline {
			continue
		}
		probability := 0
		if p.DealProbability != nil {
			probability = *p.DealProbability
		}
		m.TotalCount++
		m.TotalValue += p.Budget
		m.WeightedValue += p.Budget * float64(probability) / 100
		if p.PipelineStage != nil {
			m.StageCounts[strings.ToLower(*p.PipelineStage)]++
		}
	}
	m.RevenueForecast = m.WeightedValue
	return m
}

// Metrics loads the tenant's pipeline projects and derives the metrics.
func (s *Service) Metrics(ctx context.Context, userID uuid.UUID) (Metrics, error) {
	projects, err := s.store.ListProjects(ctx, userID, store.ListOptions{Status: models.ProjectStatusPipeline})
	if err != nil {
		return Metrics{}, err
	}
	return ComputeMetrics(projects), nil
}
