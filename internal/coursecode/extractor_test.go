package coursecode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"handbook/internal/domain"
)

func TestFind(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"upper", "what about C04379?", "C04379"},
		{"lower", "tell me about c04379", "C04379"},
		{"punctuation", "(c04379), please", "C04379"},
		{"start of text", "C10302 admission", "C10302"},
		{"six digits", "what is c043791", ""},
		{"four digits", "what is C0437", ""},
		{"c999999", "query about c999999", ""},
		{"embedded in word", "xc04379", ""},
		{"first wins", "compare C11111 and C22222", "C11111"},
		{"none", "tell me about courses", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Find(tc.in))
		})
	}
}

func TestExtractExplicitWins(t *testing.T) {
	e := NewExtractor(10)
	m := e.Extract(domain.QueryContext{
		Message:    "admission for C11111",
		CourseCode: " c22222 ",
	})
	assert.Equal(t, "C22222", m.Code)
	assert.Equal(t, SourceExplicit, m.Source)
}

func TestExtractNonCanonicalExplicitIsKept(t *testing.T) {
	e := NewExtractor(10)
	m := e.Extract(domain.QueryContext{Message: "about C04379", CourseCode: " c123 "})
	assert.Equal(t, "C123", m.Code)
	assert.Equal(t, SourceExplicit, m.Source)
	assert.Equal(t, domain.Filter{CourseCode: "C123"}, m.Filter())
}

func TestExtractHistoryMostRecentFirst(t *testing.T) {
	e := NewExtractor(10)
	m := e.Extract(domain.QueryContext{
		Message: "and the career options?",
		History: []domain.Turn{
			{Text: "tell me about C11111", Type: domain.TurnUser},
			{Text: "sure", Type: domain.TurnBot},
			{Text: "what about c22222 instead", Type: domain.TurnUser},
			{Text: "C22222 is a master's course", Type: domain.TurnBot},
		},
	})
	assert.Equal(t, "C22222", m.Code)
	assert.Equal(t, SourceHistory, m.Source)
}

func TestExtractHistoryWindow(t *testing.T) {
	e := NewExtractor(1)
	m := e.Extract(domain.QueryContext{
		Message: "and the career options?",
		History: []domain.Turn{
			{Text: "tell me about C11111", Type: domain.TurnUser},
			{Text: "sure", Type: domain.TurnBot},
		},
	})
	assert.False(t, m.Found())
	assert.True(t, m.Filter().IsZero())
}

func TestExtractSkipsBotTurns(t *testing.T) {
	e := NewExtractor(10)
	m := e.Extract(domain.QueryContext{
		Message: "what are the fees?",
		History: []domain.Turn{
			{Text: "I'm interested in c11111", Type: domain.TurnUser},
			{Text: "See also [Course Code: C22222]", Type: domain.TurnBot},
		},
	})
	assert.Equal(t, "C11111", m.Code)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("C04379"))
	assert.False(t, Valid("c04379"))
	assert.False(t, Valid("C043791"))
	assert.False(t, Valid("C0437"))
	assert.Equal(t, "C04379", Normalize(" c04379\n"))
}
