package content

import (
	"encoding/json"
	"fmt"
)

// ItemKind discriminates the course structure element a progress record
// points at.
type ItemKind int

const (
	ItemLesson ItemKind = iota + 1
	ItemAssessment
)

// Collection is the store collection the kind lives in, used as relationTo.
func (k ItemKind) Collection() string {
	switch k {
	case ItemLesson:
		return "lessons"
	case ItemAssessment:
		return "assessments"
	default:
		return ""
	}
}

func (k ItemKind) String() string {
	switch k {
	case ItemLesson:
		return "lesson"
	case ItemAssessment:
		return "assessment"
	default:
		return fmt.Sprintf("ItemKind(%d)", int(k))
	}
}

func ParseItemKind(collection string) (ItemKind, error) {
	switch collection {
	case "lessons":
		return ItemLesson, nil
	case "assessments":
		return ItemAssessment, nil
	default:
		return 0, fmt.Errorf("content: unknown item collection %q", collection)
	}
}

// ItemRef is a polymorphic reference to a lesson or an assessment. Two refs
// are the same item only when both kind and id match.
type ItemRef struct {
	Kind ItemKind
	ID   ID
}

func LessonRef(id ID) ItemRef     { return ItemRef{Kind: ItemLesson, ID: id} }
func AssessmentRef(id ID) ItemRef { return ItemRef{Kind: ItemAssessment, ID: id} }

func (r ItemRef) Equal(o ItemRef) bool { return r.Kind == o.Kind && r.ID == o.ID }

func (r ItemRef) String() string { return r.Kind.Collection() + "/" + string(r.ID) }

type itemRefJSON struct {
	RelationTo string `json:"relationTo"`
	Value      ID     `json:"value"`
}

func (r ItemRef) MarshalJSON() ([]byte, error) {
	c := r.Kind.Collection()
	if c == "" {
		return nil, fmt.Errorf("content: cannot encode item of kind %v", r.Kind)
	}
	return json.Marshal(itemRefJSON{RelationTo: c, Value: r.ID})
}

func (r *ItemRef) UnmarshalJSON(b []byte) error {
	var raw itemRefJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	k, err := ParseItemKind(raw.RelationTo)
	if err != nil {
		return err
	}
	*r = ItemRef{Kind: k, ID: raw.Value}
	return nil
}
