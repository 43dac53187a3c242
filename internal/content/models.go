package content

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
)

type Option struct {
	ID        string `json:"id"`
	Label     string `json:"label,omitempty"`
	IsCorrect bool   `json:"isCorrect"`
}

type Question struct {
	ID      ID           `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt,omitempty"`
	Options []Option     `json:"options"`
}

// Item is one question slot of an assessment.
type Item struct {
	QuestionID ID
	Question   *Question // nil when the store returned only the id
	Points     *float64  // nil means the default of 1
	Order      int
}

// PointsPossible is the item's weight; unspecified points count as 1.
func (it Item) PointsPossible() float64 {
	if it.Points == nil {
		return 1
	}
	if *it.Points < 0 {
		return 0
	}
	return *it.Points
}

type itemJSON struct {
	Question json.RawMessage `json:"question"`
	Points   *float64        `json:"points,omitempty"`
	Order    int             `json:"order"`
}

func (it *Item) UnmarshalJSON(b []byte) error {
	var raw itemJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*it = Item{Points: raw.Points, Order: raw.Order}
	if len(raw.Question) == 0 {
		return nil
	}
	if raw.Question[0] == '{' {
		var q Question
		if err := json.Unmarshal(raw.Question, &q); err != nil {
			return fmt.Errorf("item question: %w", err)
		}
		it.Question = &q
		it.QuestionID = q.ID
		return nil
	}
	return json.Unmarshal(raw.Question, &it.QuestionID)
}

func (it Item) MarshalJSON() ([]byte, error) {
	var q any = it.QuestionID
	if it.Question != nil {
		q = it.Question
	}
	return json.Marshal(struct {
		Question any      `json:"question"`
		Points   *float64 `json:"points,omitempty"`
		Order    int      `json:"order"`
	}{q, it.Points, it.Order})
}

type Assessment struct {
	ID           ID      `json:"id"`
	Title        string  `json:"title,omitempty"`
	Items        []Item  `json:"items"`
	PassingScore float64 `json:"passingScore"`
	Module       ID      `json:"module,omitempty"`
}

// OrderedItems returns the items sorted by Order; ties keep stored order.
func (a Assessment) OrderedItems() []Item {
	out := make([]Item, len(a.Items))
	copy(out, a.Items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

type SubmissionStatus string

const (
	SubmissionInProgress SubmissionStatus = "in_progress"
	SubmissionSubmitted  SubmissionStatus = "submitted"
)

type Submission struct {
	ID             ID               `json:"id"`
	Status         SubmissionStatus `json:"status"`
	Assessment     ID               `json:"assessment"`
	Trainee        ID               `json:"trainee"`
	Course         ID               `json:"course"`
	Enrollment     ID               `json:"enrollment,omitempty"`
	PassingScore   float64          `json:"passingScore"` // snapshot taken when the attempt started
	Score          float64          `json:"score"`
	PointsEarned   float64          `json:"pointsEarned"`
	PointsPossible float64          `json:"pointsPossible"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

// SubmissionResult is the terminal write applied to a submission.
type SubmissionResult struct {
	Score          float64
	PointsEarned   float64
	PointsPossible float64
	CompletedAt    time.Time
}

type SubmissionAnswer struct {
	ID           ID       `json:"id,omitempty"`
	Submission   ID       `json:"submission"`
	Question     ID       `json:"question"`
	Response     Response `json:"response"`
	IsCorrect    bool     `json:"isCorrect"`
	PointsEarned float64  `json:"pointsEarned"`
}

type ProgressStatus string

const (
	ProgressNotStarted ProgressStatus = "not_started"
	ProgressInProgress ProgressStatus = "in_progress"
	ProgressCompleted  ProgressStatus = "completed"
	ProgressPassed     ProgressStatus = "passed"
	ProgressFailed     ProgressStatus = "failed"
)

type CourseItemProgress struct {
	ID                   ID             `json:"id,omitempty"`
	Trainee              ID             `json:"trainee"`
	Course               ID             `json:"course"`
	Enrollment           ID             `json:"enrollment,omitempty"`
	Item                 ItemRef        `json:"item"`
	Status               ProgressStatus `json:"status"`
	IsCompleted          bool           `json:"isCompleted"`
	Attempts             int            `json:"attempts"`
	CompletionPercentage float64        `json:"completionPercentage"`
	Score                *float64       `json:"score,omitempty"`
	FirstStartedAt       *time.Time     `json:"firstStartedAt,omitempty"`
	LastAccessedAt       *time.Time     `json:"lastAccessedAt,omitempty"`
	CompletedAt          *time.Time     `json:"completedAt"` // null clears it on update
}

// ProgressKey identifies the one progress record per (trainee, course, item).
type ProgressKey struct {
	Trainee ID
	Course  ID
	Item    ItemRef
}

func (p CourseItemProgress) Key() ProgressKey {
	return ProgressKey{Trainee: p.Trainee, Course: p.Course, Item: p.Item}
}

// Matches reports whether p is the record for k.
func (k ProgressKey) Matches(p CourseItemProgress) bool {
	pk := p.Key()
	return pk.Trainee == k.Trainee && pk.Course == k.Course && pk.Item.Equal(k.Item)
}

type ProgressFilter struct {
	Trainee       ID
	Course        ID
	Kind          ItemKind // zero matches every kind
	CompletedOnly bool
}

func (f ProgressFilter) Match(p CourseItemProgress) bool {
	if p.Trainee != f.Trainee || p.Course != f.Course {
		return false
	}
	if f.Kind != 0 && p.Item.Kind != f.Kind {
		return false
	}
	return !f.CompletedOnly || p.IsCompleted
}

type Trainee struct {
	ID   ID `json:"id"`
	User ID `json:"user"`
}

type Course struct {
	ID    ID     `json:"id"`
	Title string `json:"title,omitempty"`
}

type EnrollmentStatus string

const EnrollmentActive EnrollmentStatus = "active"

type Enrollment struct {
	ID      ID               `json:"id"`
	Trainee ID               `json:"trainee"`
	Course  ID               `json:"course"`
	Status  EnrollmentStatus `json:"status"`
}
