package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/exam-engine/internal/question"
)

func intPtr(v int) *int { return &v }

func mcq(id string, correct int) question.Question {
	return question.Question{ID: id, Text: id, Options: []string{"a", "b", "c", "d"}, CorrectOptionIndex: correct}
}

func TestScale(t *testing.T) {
	e := NewEngine(DefaultConfig())

	assert.Equal(t, 200, e.Scale(0, 0), "empty bucket scores min scale")
	assert.Equal(t, 200, e.Scale(0, 3))
	assert.Equal(t, 800, e.Scale(3, 3))
	assert.Equal(t, 500, e.Scale(1, 2))
	assert.Equal(t, 400, e.Scale(1, 3))
	assert.Equal(t, 600, e.Scale(2, 3))
	// 200 + 1/7*600 = 285.71
	assert.Equal(t, 286, e.Scale(1, 7))
}

func TestScoreSATComposite(t *testing.T) {
	e := NewEngine(DefaultConfig())
	res := e.Score([]SectionInput{
		{SectionID: "reading", Bucket: "reading", Questions: []question.Question{mcq("r1", 0), mcq("r2", 1)}, Answers: []*int{intPtr(0), intPtr(1)}},
		{SectionID: "writing", Bucket: "writing", Questions: []question.Question{mcq("w1", 2), mcq("w2", 3)}, Answers: []*int{intPtr(2), nil}},
		{SectionID: "math-no-calc", Bucket: "math", Questions: []question.Question{mcq("m1", 0)}, Answers: []*int{intPtr(1)}},
		{SectionID: "math-calc", Bucket: "math", Questions: []question.Question{mcq("m2", 0)}, Answers: []*int{intPtr(0)}},
	})

	reading, _ := res.Bucket("reading")
	writing, _ := res.Bucket("writing")
	math, _ := res.Bucket("math")
	assert.Equal(t, BucketScore{Bucket: "reading", Correct: 2, Total: 2, Scaled: 800}, reading)
	assert.Equal(t, BucketScore{Bucket: "writing", Correct: 1, Total: 2, Scaled: 500}, writing)
	assert.Equal(t, BucketScore{Bucket: "math", Correct: 1, Total: 2, Scaled: 500}, math)

	// (800+500)/2 = 650, + 500
	assert.Equal(t, 1150, res.Composite)
	assert.Equal(t, 400, res.MinComposite)
	assert.Equal(t, 1600, res.MaxComposite)
	require.Len(t, res.Breakdown, 6)
	assert.Nil(t, res.Breakdown[3].Selected)
	assert.False(t, res.Breakdown[3].Correct)
	assert.Equal(t, "math-no-calc", res.Breakdown[4].SectionID)
	assert.Equal(t, 1, *res.Breakdown[4].Selected)
	assert.Equal(t, 0, res.Breakdown[4].CorrectOptionIndex)
}

func TestScoreZeroQuestionSection(t *testing.T) {
	e := NewEngine(DefaultConfig())
	res := e.Score([]SectionInput{
		{SectionID: "reading", Bucket: "reading"},
	})

	reading, ok := res.Bucket("reading")
	require.True(t, ok)
	assert.Equal(t, 0, reading.Correct)
	assert.Equal(t, 0, reading.Total)
	assert.Equal(t, 200, reading.Scaled)

	// Buckets named by the rule but absent from the exam also score min.
	writing, ok := res.Bucket("writing")
	require.True(t, ok)
	assert.Equal(t, 200, writing.Scaled)
	assert.Equal(t, 400, res.Composite)
	assert.Empty(t, res.Breakdown)
}

func TestScoreShortAnswerSliceAndBadIndex(t *testing.T) {
	e := NewEngine(Config{MinScale: 0, MaxScale: 100})
	res := e.Score([]SectionInput{
		{SectionID: "s", Bucket: "b", Questions: []question.Question{mcq("q1", 0), mcq("q2", 0)}, Answers: []*int{intPtr(9)}},
	})
	b, _ := res.Bucket("b")
	assert.Equal(t, 0, b.Correct)
	assert.Equal(t, 2, b.Total)
	assert.Equal(t, 0, res.Composite)
}

func TestScoreIsOrderIndependent(t *testing.T) {
	e := NewEngine(DefaultConfig())
	a := SectionInput{SectionID: "reading", Bucket: "reading", Questions: []question.Question{mcq("r1", 0)}, Answers: []*int{intPtr(0)}}
	b := SectionInput{SectionID: "math", Bucket: "math", Questions: []question.Question{mcq("m1", 0), mcq("m2", 1)}, Answers: []*int{intPtr(0), nil}}

	first := e.Score([]SectionInput{a, b})
	second := e.Score([]SectionInput{b, a})
	assert.Equal(t, first.Composite, second.Composite)
}

func TestScoreCopiesSelected(t *testing.T) {
	e := NewEngine(DefaultConfig())
	answers := []*int{intPtr(0)}
	res := e.Score([]SectionInput{{SectionID: "r", Bucket: "reading", Questions: []question.Question{mcq("r1", 0)}, Answers: answers}})
	*answers[0] = 3
	assert.Equal(t, 0, *res.Breakdown[0].Selected)
}

func TestEmptyRuleAveragesBuckets(t *testing.T) {
	e := NewEngine(Config{MinScale: 0, MaxScale: 100})
	res := e.Score([]SectionInput{
		{SectionID: "a", Bucket: "a", Questions: []question.Question{mcq("a1", 0)}, Answers: []*int{intPtr(0)}},
		{SectionID: "b", Bucket: "b", Questions: []question.Question{mcq("b1", 0)}, Answers: []*int{nil}},
	})
	assert.Equal(t, 50, res.Composite)
	assert.Equal(t, 100, res.MaxComposite)
}

func TestParseCompositeRule(t *testing.T) {
	rule, err := ParseCompositeRule(" reading | writing , math ")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"reading", "writing"}, {"math"}}, rule.Terms)
	assert.Equal(t, "reading|writing,math", rule.String())
	assert.Equal(t, DefaultConfig().Composite, rule)

	empty, err := ParseCompositeRule("")
	require.NoError(t, err)
	assert.Empty(t, empty.Terms)

	_, err = ParseCompositeRule("reading,,math")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{MinScale: 800, MaxScale: 200}.Validate())
}
