package gantt

import (
	"time"

	"github.com/pkg/errors"

	"github.com/kedhead/project-manager-sub000/pkg/models"
)

// Bar render kinds. A task renders as a summary bar exactly when at least
// one live task points to it as parent; it is a presentation distinction,
// not a storage kind.
const (
	BarTypeTask    = "task"
	BarTypeSummary = "summary"
)

// Widget short codes for the four dependency types.
const (
	CodeEndToStart   = "e2s"
	CodeStartToStart = "s2s"
	CodeEndToEnd     = "e2e"
	CodeStartToEnd   = "s2e"
)

// CodeForType maps a semantic dependency type to the widget's short code.
func CodeForType(t models.DependencyType) (string, error) {
	switch t {
	case models.FinishToStart:
		return CodeEndToStart, nil
	case models.StartToStart:
		return CodeStartToStart, nil
	case models.FinishToFinish:
		return CodeEndToEnd, nil
	case models.StartToFinish:
		return CodeStartToEnd, nil
	default:
		return "", errors.Errorf("unknown dependency type %q", t)
	}
}

// TypeForCode maps a widget short code back to the semantic type.
func TypeForCode(code string) (models.DependencyType, error) {
	switch code {
	case CodeEndToStart:
		return models.FinishToStart, nil
	case CodeStartToStart:
		return models.StartToStart, nil
	case CodeEndToEnd:
		return models.FinishToFinish, nil
	case CodeStartToEnd:
		return models.StartToFinish, nil
	default:
		return "", errors.Errorf("unknown link code %q", code)
	}
}

const dateLayout = "2006-01-02"

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid date %q", s)
	}
	return &t, nil
}

// normalizeProgress converts widget progress input to the canonical 0-100
// integer scale. Values in (0, 1] are treated as fractions; this is the
// single place the 0-1 form is accepted.
func normalizeProgress(p float64) int {
	if p > 0 && p <= 1 {
		return int(p*100 + 0.5)
	}
	return int(p + 0.5)
}

// Bar is one row of the chart widget's task model.
type Bar struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Duration  int    `json:"duration,omitempty"`
	Progress  int    `json:"progress"`
	ParentID  int64  `json:"parent,omitempty"` // 0 means root
	Type      string `json:"type"`
}

// Link is one arrow of the chart widget's link model. Source is the
// predecessor, Target the successor.
type Link struct {
	ID     int64  `json:"id"`
	Source int64  `json:"source"`
	Target int64  `json:"target"`
	Type   string `json:"type"`
	Lag    int    `json:"lag"`
}

func barFromTask(t models.Task) Bar {
	b := Bar{
		ID:        t.ID,
		Text:      t.Title,
		StartDate: formatDate(t.StartDate),
		EndDate:   formatDate(t.EndDate),
		Progress:  t.Progress,
		Type:      BarTypeTask,
	}
	if t.Duration != nil {
		b.Duration = *t.Duration
	}
	if t.ParentTaskID != nil {
		b.ParentID = *t.ParentTaskID
	}
	if t.SubtaskCount > 0 {
		b.Type = BarTypeSummary
	}
	return b
}

func linkFromDependency(d models.Dependency) (Link, error) {
	code, err := CodeForType(d.Type)
	if err != nil {
		return Link{}, err
	}
	return Link{
		ID:     d.ID,
		Source: d.DependsOnTaskID,
		Target: d.TaskID,
		Type:   code,
		Lag:    d.LagTime,
	}, nil
}
