package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"academy/internal/apierr"
	"academy/internal/curriculum"
	"academy/internal/logger"
	"academy/internal/models"
	"academy/internal/versioning"
)

// File is a curriculum seed document.
type File struct {
	// Approve publishes every created entity right away.
	Approve  bool      `yaml:"approve"`
	Programs []Program `yaml:"programs"`
}

type Program struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Themes      []Theme  `yaml:"themes"`
	Lessons     []Lesson `yaml:"lessons"`
}

type Theme struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

// Lesson entries are chained in file order. Theme refers to a theme title of
// the same program.
type Lesson struct {
	Title    string `yaml:"title"`
	Theme    string `yaml:"theme"`
	Theory   string `yaml:"theory"`
	Practice string `yaml:"practice"`
	Answer   string `yaml:"answer"`
}

type Result struct {
	Programs int
	Themes   int
	Lessons  int
	Skipped  []string
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, p := range f.Programs {
		if strings.TrimSpace(p.Title) == "" {
			return nil, fmt.Errorf("program #%d has no title", i+1)
		}
		themes := make(map[string]bool, len(p.Themes))
		for _, t := range p.Themes {
			themes[t.Title] = true
		}
		for _, l := range p.Lessons {
			if l.Theme != "" && !themes[l.Theme] {
				return nil, fmt.Errorf("lesson %q of %q refers to unknown theme %q", l.Title, p.Title, l.Theme)
			}
		}
	}
	return &f, nil
}

// Seeder writes a seed document through the curriculum service, so every
// entity gets its snapshot like any editor save.
type Seeder struct {
	content *curriculum.Service
	flow    *versioning.Workflow
	log     *logger.Logger
}

func NewSeeder(content *curriculum.Service, flow *versioning.Workflow, log *logger.Logger) *Seeder {
	return &Seeder{content: content, flow: flow, log: log.With("component", "CurriculumSeeder")}
}

// Apply creates the programs of f that do not exist yet. Existing titles are
// skipped. A program that fails partway is deleted again, so the next run
// seeds it from scratch.
func (s *Seeder) Apply(ctx context.Context, actor *models.User, f *File) (*Result, error) {
	res := &Result{}
	for _, p := range f.Programs {
		program, err := s.content.CreateProgram(ctx, actor, curriculum.ProgramInput{Title: p.Title, Description: p.Description})
		if errors.Is(err, apierr.ErrConflict) {
			res.Skipped = append(res.Skipped, p.Title)
			s.log.Debug("seed program exists", "title", p.Title)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed program %q: %w", p.Title, err)
		}

		var part Result
		if err := s.fill(ctx, f, actor, program.ID, p, &part); err != nil {
			if derr := s.content.DeleteProgram(ctx, actor, program.ID); derr != nil {
				s.log.Error("seed cleanup failed", "program_id", program.ID, "error", derr)
			}
			return res, err
		}
		res.Programs++
		res.Themes += part.Themes
		res.Lessons += part.Lessons
	}
	s.log.Info("curriculum seeded",
		"programs", res.Programs, "themes", res.Themes, "lessons", res.Lessons, "skipped", len(res.Skipped))
	return res, nil
}

// fill publishes a freshly created program and adds its themes and lessons.
func (s *Seeder) fill(ctx context.Context, f *File, actor *models.User, programID uint, p Program, part *Result) error {
	if err := s.publish(ctx, f, actor, models.KindProgram, programID); err != nil {
		return err
	}

	themeIDs := make(map[string]uint, len(p.Themes))
	for _, t := range p.Themes {
		theme, err := s.content.CreateTheme(ctx, actor, programID, curriculum.ThemeInput{Title: t.Title, Description: t.Description})
		if err != nil {
			return fmt.Errorf("seed theme %q: %w", t.Title, err)
		}
		themeIDs[t.Title] = theme.ID
		part.Themes++
		if err := s.publish(ctx, f, actor, models.KindTheme, theme.ID); err != nil {
			return err
		}
	}

	for _, l := range p.Lessons {
		in := curriculum.LessonInput{Title: l.Title, Theory: l.Theory, Practice: l.Practice, Answer: l.Answer}
		if id, ok := themeIDs[l.Theme]; ok {
			in.ThemeID = &id
		}
		lesson, err := s.content.AddLesson(ctx, actor, programID, in)
		if err != nil {
			return fmt.Errorf("seed lesson %q: %w", l.Title, err)
		}
		part.Lessons++
		if err := s.publish(ctx, f, actor, models.KindLesson, lesson.ID); err != nil {
			return err
		}
	}
	return nil
}

// publish approves the newest pending snapshot when the file asks for it.
func (s *Seeder) publish(ctx context.Context, f *File, actor *models.User, kind models.Kind, id uint) error {
	if !f.Approve {
		return nil
	}
	review, err := s.flow.Review(ctx, kind, id)
	if err != nil {
		return err
	}
	if len(review.NotApproved) == 0 {
		return nil
	}
	if _, err := s.flow.Decide(ctx, actor, kind, id, review.NotApproved[0].ID, true); err != nil {
		return fmt.Errorf("approve %s %d: %w", kind, id, err)
	}
	return nil
}
