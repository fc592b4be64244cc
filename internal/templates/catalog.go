package templates

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"dealpipe/internal/deal"
)

//go:embed default_templates.toml
var defaultCatalogTOML []byte

// catalogFile mirrors the TOML document shape.
type catalogFile struct {
	Templates []templateEntry `toml:"templates"`
}

type templateEntry struct {
	Stage           string `toml:"stage"`
	Key             string `toml:"key"`
	Title           string `toml:"title"`
	Description     string `toml:"description"`
	Priority        string `toml:"priority"`
	DaysUntilDue    int    `toml:"days_until_due"`
	AutoCompletable bool   `toml:"auto_completable"`
}

// Catalog is an immutable set of task templates grouped by stage. Within a
// stage, templates keep the order they appear in the source file.
type Catalog struct {
	byStage map[deal.Stage][]deal.TaskTemplate
}

// Load reads a catalog from the given TOML file, or the embedded default
// catalog when path is empty.
func Load(path string) (*Catalog, error) {
	data := defaultCatalogTOML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read template catalog: %w", err)
		}
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}

	catalog := &Catalog{byStage: make(map[deal.Stage][]deal.TaskTemplate)}
	seen := make(map[deal.Stage]map[string]bool)
	for i, entry := range file.Templates {
		stage, ok := deal.ParseStage(entry.Stage)
		if !ok {
			return nil, fmt.Errorf("template %d: unknown stage %q", i+1, entry.Stage)
		}
		if entry.Key == "" {
			return nil, fmt.Errorf("template %d (%s): key is required", i+1, stage)
		}
		if entry.Title == "" {
			return nil, fmt.Errorf("template %q: title is required", entry.Key)
		}
		if entry.DaysUntilDue < 0 {
			return nil, fmt.Errorf("template %q: days_until_due must not be negative", entry.Key)
		}
		priority, err := parsePriority(entry.Priority)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", entry.Key, err)
		}
		if seen[stage] == nil {
			seen[stage] = make(map[string]bool)
		}
		if seen[stage][entry.Key] {
			return nil, fmt.Errorf("template %q: duplicate key for stage %s", entry.Key, stage)
		}
		seen[stage][entry.Key] = true

		catalog.byStage[stage] = append(catalog.byStage[stage], deal.TaskTemplate{
			Stage:             stage,
			Order:             len(catalog.byStage[stage]),
			Key:               entry.Key,
			Title:             entry.Title,
			Description:       entry.Description,
			DefaultPriority:   priority,
			DaysUntilDue:      entry.DaysUntilDue,
			IsAutoCompletable: entry.AutoCompletable,
		})
	}
	return catalog, nil
}

func parsePriority(s string) (deal.Priority, error) {
	switch s {
	case "":
		return deal.PriorityNormal, nil
	case "low":
		return deal.PriorityLow, nil
	case "normal":
		return deal.PriorityNormal, nil
	case "high":
		return deal.PriorityHigh, nil
	default:
		return "", fmt.Errorf("unknown priority %q (expected low, normal, or high)", s)
	}
}

// ForStage returns the templates for a stage in catalog order. Stages with no
// templates return an empty slice.
func (c *Catalog) ForStage(stage deal.Stage) []deal.TaskTemplate {
	out := make([]deal.TaskTemplate, len(c.byStage[stage]))
	copy(out, c.byStage[stage])
	return out
}

// Stages returns the stages that have at least one template, sorted.
func (c *Catalog) Stages() []deal.Stage {
	stages := make([]deal.Stage, 0, len(c.byStage))
	for stage := range c.byStage {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages
}

// Len returns the total number of templates in the catalog.
func (c *Catalog) Len() int {
	total := 0
	for _, entries := range c.byStage {
		total += len(entries)
	}
	return total
}
