package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveydesk-go/internal/credential"
)

type fakeSource map[credential.Slot]string

func (f fakeSource) Get(_ context.Context, slot credential.Slot) (string, bool) {
	v, ok := f[slot]
	return v, ok
}

func TestClassifyPriority(t *testing.T) {
	table := NewTable(nil)

	cases := []struct {
		endpoint string
		want     Policy
	}{
		{"/api/CreateSurveyFromQuery", PolicyVisitorOnly},
		{"/api/CreateSurvey", PolicyUserOnly},
		{"/api/StartSurvey?id=1", PolicyVisitorOnly},
		{"/api/GetMembers", PolicyUserOnly},
		{"/api/GetSurveys", PolicyFallback},
		{"/api/getmembers", PolicyFallback},
		// both a visitor-only and a user-only pattern: visitor wins
		{"/api/GenerateQuestionsFromBrand/AddQuestion", PolicyVisitorOnly},
		{"/api/AddQuestion/StartSurvey", PolicyVisitorOnly},
	}
	for _, tc := range cases {
		got, _ := table.Classify(tc.endpoint)
		assert.Equal(t, tc.want, got, tc.endpoint)
	}
}

func TestClassifyReportsPattern(t *testing.T) {
	_, pattern := NewTable(nil).Classify("/api/CreateSurveyFromBrand")
	assert.Equal(t, "CreateSurveyFromBrand", pattern)
}

func TestCustomTable(t *testing.T) {
	table := NewTable([]Rule{{"Admin", PolicyUserOnly}})
	p, _ := table.Classify("/api/AdminPanel")
	assert.Equal(t, PolicyUserOnly, p)
	p, _ = table.Classify("/api/StartSurvey")
	assert.Equal(t, PolicyFallback, p)
	assert.Len(t, table.Rules(), 1)
}

func TestSelectVisitorOnlyNeverFallsBack(t *testing.T) {
	s := NewSelector(nil, fakeSource{credential.SlotUser: "u"})
	sel := s.Select(context.Background(), "/api/StartSurvey")
	assert.Equal(t, PolicyVisitorOnly, sel.Policy)
	assert.False(t, sel.Present)
	assert.Equal(t, credential.SlotVisitor, sel.Slot)
}

func TestSelectUserOnlyNeverFallsBack(t *testing.T) {
	s := NewSelector(nil, fakeSource{credential.SlotVisitor: "v"})
	sel := s.Select(context.Background(), "/api/GetMembers")
	assert.Equal(t, PolicyUserOnly, sel.Policy)
	assert.False(t, sel.Present)
	assert.Empty(t, sel.Token)
}

func TestSelectFallbackRoundTrip(t *testing.T) {
	ctx := context.Background()
	endpoint := "/api/GetSurveys"

	sel := NewSelector(nil, fakeSource{credential.SlotUser: "u"}).Select(ctx, endpoint)
	require.True(t, sel.Present)
	assert.Equal(t, "u", sel.Token)
	assert.Equal(t, credential.SlotUser, sel.Slot)

	sel = NewSelector(nil, fakeSource{credential.SlotVisitor: "v"}).Select(ctx, endpoint)
	require.True(t, sel.Present)
	assert.Equal(t, "v", sel.Token)
	assert.Equal(t, credential.SlotVisitor, sel.Slot)

	sel = NewSelector(nil, fakeSource{credential.SlotUser: "u", credential.SlotVisitor: "v"}).Select(ctx, endpoint)
	assert.Equal(t, "u", sel.Token)

	sel = NewSelector(nil, fakeSource{}).Select(ctx, endpoint)
	assert.False(t, sel.Present)
	assert.Equal(t, credential.Slot(""), sel.Slot)
}

func TestPicksAreCapped(t *testing.T) {
	s := NewSelector(nil, fakeSource{})
	s.pickLogCap = 3
	for _, ep := range []string{"a", "b", "c", "d"} {
		s.Select(context.Background(), ep)
	}
	picks := s.Picks(10)
	require.Len(t, picks, 3)
	assert.Equal(t, "b", picks[0].Endpoint)
	assert.Equal(t, "d", picks[2].Endpoint)
	assert.Len(t, s.Picks(1), 1)
}
