package content

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want ID
	}{
		{"42", "42"},
		{" 42 ", "42"},
		{"007", "7"},
		{"65f1c0ffee", "65f1c0ffee"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseID(tt.in), "ParseID(%q)", tt.in)
	}
}

func TestIDDecodesNumbersStringsAndDocuments(t *testing.T) {
	var got struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
		D ID `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": 12, "b": "12", "c": {"id": 12, "title": "x"}, "d": null}`), &got)
	require.NoError(t, err)
	assert.Equal(t, ID("12"), got.A)
	assert.Equal(t, got.A, got.B)
	assert.Equal(t, got.A, got.C)
	assert.True(t, got.D.IsZero())
}

func TestIDEncodesNumericIDsAsNumbers(t *testing.T) {
	b, err := json.Marshal(map[string]ID{"n": "12", "s": "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n": 12, "s": "abc"}`, string(b))
}

func TestResponseDecoding(t *testing.T) {
	var rs map[string]Response
	err := json.Unmarshal([]byte(`{"q1": "a", "q2": ["c", "a"], "q3": null, "q4": 7, "q5": ["b"]}`), &rs)
	require.NoError(t, err)

	v, ok := rs["q1"].Single()
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	assert.True(t, rs["q2"].IsMulti())
	assert.Equal(t, []string{"c", "a"}, rs["q2"].Values())

	assert.True(t, rs["q3"].IsZero())

	v, ok = rs["q4"].Single()
	assert.True(t, ok)
	assert.Equal(t, "7", v)

	_, ok = rs["q5"].Single()
	assert.False(t, ok, "a one-element list is still a list")
}

func TestItemRefEqualityNeedsKindAndID(t *testing.T) {
	assert.True(t, LessonRef("5").Equal(LessonRef(ParseID("05"))))
	assert.False(t, LessonRef("5").Equal(AssessmentRef("5")))
}

func TestItemRefJSON(t *testing.T) {
	var r ItemRef
	require.NoError(t, json.Unmarshal([]byte(`{"relationTo":"lessons","value":{"id":9}}`), &r))
	assert.Equal(t, LessonRef("9"), r)

	b, err := json.Marshal(AssessmentRef("3"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"relationTo":"assessments","value":3}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"relationTo":"videos","value":1}`), &r))
}

func TestAssessmentItemsDecodePopulatedAndBareQuestions(t *testing.T) {
	raw := `{
	  "id": 1, "passingScore": 70,
	  "items": [
	    {"question": {"id": 10, "type": "single_choice", "options": [{"id": "a", "isCorrect": true}]}, "points": 5, "order": 2},
	    {"question": 11, "order": 1}
	  ]
	}`
	var a Assessment
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	require.Len(t, a.Items, 2)

	require.NotNil(t, a.Items[0].Question)
	assert.Equal(t, ID("10"), a.Items[0].QuestionID)
	assert.Equal(t, 5.0, a.Items[0].PointsPossible())

	assert.Nil(t, a.Items[1].Question)
	assert.Equal(t, ID("11"), a.Items[1].QuestionID)
	assert.Equal(t, 1.0, a.Items[1].PointsPossible(), "unspecified points default to 1")

	ordered := a.OrderedItems()
	assert.Equal(t, ID("11"), ordered[0].QuestionID)
	assert.Equal(t, ID("10"), ordered[1].QuestionID)
}

func TestAssessmentItemWithDeletedQuestionKeepsPoints(t *testing.T) {
	var a Assessment
	require.NoError(t, json.Unmarshal([]byte(`{"id": 1, "items": [{"question": null, "points": 10}]}`), &a))
	require.Len(t, a.Items, 1)
	assert.True(t, a.Items[0].QuestionID.IsZero())
	assert.Nil(t, a.Items[0].Question)
	assert.Equal(t, 10.0, a.Items[0].PointsPossible())
}

func TestProgressKeyMatches(t *testing.T) {
	p := CourseItemProgress{ID: "9", Trainee: "1", Course: "2", Item: LessonRef("7")}
	assert.True(t, p.Key().Matches(p))
	assert.True(t, ProgressKey{Trainee: "1", Course: "2", Item: LessonRef("7")}.Matches(p))
	assert.False(t, ProgressKey{Trainee: "1", Course: "2", Item: AssessmentRef("7")}.Matches(p))
	assert.False(t, ProgressKey{Trainee: "1", Course: "3", Item: LessonRef("7")}.Matches(p))
}
