package specification

import (
	"strings"

	"ai-todo-agent-be/internal/entity"

	"gorm.io/gorm"
)

type ByTaskStatus struct {
	Status entity.TaskStatus
}

func (s ByTaskStatus) Apply(db *gorm.DB) *gorm.DB {
	switch s.Status {
	case entity.TaskStatusCompleted:
		return db.Where("completed = ?", true)
	case entity.TaskStatusIncomplete:
		return db.Where("completed = ?", false)
	default:
		return db
	}
}

// TitleMatches is a case-insensitive title match. Exact compares the whole
// title, otherwise the fragment may appear anywhere.
type TitleMatches struct {
	Fragment string
	Exact    bool
}

func (s TitleMatches) Apply(db *gorm.DB) *gorm.DB {
	fragment := strings.ToLower(strings.TrimSpace(s.Fragment))
	if s.Exact {
		return db.Where("LOWER(title) = ?", fragment)
	}
	return db.Where("LOWER(title) LIKE ? ESCAPE '\\'", "%"+escapeLike(fragment)+"%")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
