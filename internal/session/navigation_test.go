package session

import (
	"context"
	"errors"
	"testing"

	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeQuestionAssessment is a required choice, a required text and an
// optional rating question, spread over two parts stored out of order.
func threeQuestionAssessment() *models.Assessment {
	return &models.Assessment{
		ID: 1,
		Parts: []models.Part{
			{ID: 20, OrderIndex: 1, Blocks: []models.Block{
				{ID: 201, Questions: []models.Question{
					{ID: 3, Type: models.QuestionRating, RatingMin: 1, RatingMax: 5},
				}},
			}},
			{ID: 10, OrderIndex: 0, Blocks: []models.Block{
				{ID: 102, OrderIndex: 1, Questions: []models.Question{
					{ID: 2, Type: models.QuestionText, IsRequired: true},
				}},
				{ID: 101, OrderIndex: 0, Questions: []models.Question{
					{ID: 1, Type: models.QuestionChoice, IsRequired: true, Points: 1,
						Options: []models.QuestionOption{{ID: 11, IsCorrect: true}, {ID: 12}}},
				}},
			}},
		},
	}
}

func newTestNavigator(t *testing.T, allowJump bool) (*Navigator, *AnswerStore, *memoryAttempts) {
	t.Helper()
	clock := newTestClock()
	store := newTestStore(newMemoryAnswers(), clock)
	attempts := &memoryAttempts{}
	nav, err := NewNavigator(NavigatorConfig{
		AttemptID: 7,
		Questions: Flatten(threeQuestionAssessment()),
		Answers:   store,
		Attempts:  attempts,
		Clock:     clock,
		AllowJump: allowJump,
	})
	require.NoError(t, err)
	return nav, store, attempts
}

func TestFlatten_Order(t *testing.T) {
	qs := Flatten(threeQuestionAssessment())
	require.Len(t, qs, 3)
	assert.Equal(t, []uint{1, 2, 3}, []uint{qs[0].ID, qs[1].ID, qs[2].ID})
}

func TestFlatten_TiesByID(t *testing.T) {
	a := &models.Assessment{Parts: []models.Part{{Blocks: []models.Block{{Questions: []models.Question{
		{ID: 9}, {ID: 4}, {ID: 6, OrderIndex: -1},
	}}}}}}
	qs := Flatten(a)
	assert.Equal(t, []uint{6, 4, 9}, []uint{qs[0].ID, qs[1].ID, qs[2].ID})
}

func TestNavigator_RequiredGateBlocksNext(t *testing.T) {
	ctx := context.Background()
	nav, store, _ := newTestNavigator(t, false)

	err := nav.Next()
	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, uint(1), gateErr.QuestionID)
	assert.Equal(t, 0, nav.Position())

	require.NoError(t, store.SetAnswer(ctx, 1, ChoiceAnswer{OptionID: 11}))
	require.NoError(t, nav.Next())
	assert.Equal(t, 1, nav.Position())

	// Whitespace-only text does not count.
	require.NoError(t, store.SetAnswer(ctx, 2, TextAnswer{Text: "   "}))
	require.True(t, errors.As(nav.Next(), &gateErr))
	assert.Equal(t, 1, nav.Position())
}

func TestNavigator_PreviousIgnoresGate(t *testing.T) {
	ctx := context.Background()
	nav, store, _ := newTestNavigator(t, false)

	assert.ErrorIs(t, nav.Previous(), ErrNoPreviousQuestion)

	require.NoError(t, store.SetAnswer(ctx, 1, ChoiceAnswer{OptionID: 12}))
	require.NoError(t, nav.Next())
	require.NoError(t, nav.Previous())
	assert.Equal(t, 0, nav.Position())
}

func TestNavigator_CompleteScenario(t *testing.T) {
	ctx := context.Background()
	nav, store, attempts := newTestNavigator(t, false)

	require.NoError(t, store.SetAnswer(ctx, 1, ChoiceAnswer{OptionID: 11}))
	require.NoError(t, nav.Next())
	require.NoError(t, store.SetAnswer(ctx, 2, TextAnswer{Text: "an answer"}))
	require.NoError(t, nav.Next())
	assert.Equal(t, 2, nav.Position())

	assert.ErrorIs(t, nav.Next(), ErrNoNextQuestion)

	score := 100.0
	require.NoError(t, nav.Complete(ctx, Outcome{Score: &score}))
	assert.Equal(t, NavCompleted, nav.Status())
	assert.Equal(t, 1, attempts.completions)

	assert.ErrorIs(t, nav.Complete(ctx, Outcome{}), ErrSessionFinished)
	assert.ErrorIs(t, nav.Previous(), ErrSessionFinished)
	assert.Equal(t, 1, attempts.completions)
}

func TestNavigator_CompleteOnlyAtLast(t *testing.T) {
	nav, _, attempts := newTestNavigator(t, true)
	assert.ErrorIs(t, nav.Complete(context.Background(), Outcome{}), ErrNotAtLastQuestion)
	assert.Equal(t, 0, attempts.completions)
}

func TestNavigator_CompleteWriteFailureKeepsActive(t *testing.T) {
	ctx := context.Background()
	nav, _, attempts := newTestNavigator(t, true)
	require.NoError(t, nav.JumpTo(2))

	attempts.failWith = errors.New("db down")
	var perr *PersistenceError
	require.True(t, errors.As(nav.Complete(ctx, Outcome{}), &perr))
	assert.Equal(t, NavActive, nav.Status())

	attempts.failWith = nil
	require.NoError(t, nav.Complete(ctx, Outcome{}))
}

func TestNavigator_JumpTo(t *testing.T) {
	nav, _, _ := newTestNavigator(t, false)
	assert.ErrorIs(t, nav.JumpTo(2), ErrJumpDisabled)

	nav, _, _ = newTestNavigator(t, true)
	require.NoError(t, nav.JumpTo(2))
	assert.Equal(t, 2, nav.Position())
	assert.ErrorIs(t, nav.JumpTo(3), ErrIndexOutOfRange)
	assert.ErrorIs(t, nav.JumpTo(-1), ErrIndexOutOfRange)
}

func TestNavigator_ExpiredQuestionPassesGate(t *testing.T) {
	nav, store, _ := newTestNavigator(t, false)
	store.Lock(1)
	require.NoError(t, nav.Next())
}

func TestNavigator_SaveAndExit(t *testing.T) {
	ctx := context.Background()
	nav, store, attempts := newTestNavigator(t, false)

	require.NoError(t, store.SetAnswer(ctx, 1, ChoiceAnswer{OptionID: 11}))
	require.NoError(t, nav.Next())
	require.NoError(t, nav.SaveAndExit(ctx))

	require.NotNil(t, attempts.position)
	assert.Equal(t, 1, *attempts.position)
	assert.Equal(t, NavSavedExited, nav.Status())
	assert.ErrorIs(t, nav.Next(), ErrSessionFinished)
}

func TestNavigator_Progress(t *testing.T) {
	ctx := context.Background()
	nav, store, _ := newTestNavigator(t, true)

	assert.Equal(t, Progress{Answered: 0, Total: 3, Percent: 0}, nav.Progress())

	require.NoError(t, store.SetAnswer(ctx, 1, ChoiceAnswer{OptionID: 11}))
	assert.Equal(t, 1, nav.Progress().Answered)

	// A skipped required question does not count.
	require.NoError(t, nav.JumpTo(2))
	require.NoError(t, nav.Previous())
	p := nav.Progress()
	assert.Equal(t, 1, p.Answered)

	require.NoError(t, store.SetAnswer(ctx, 2, TextAnswer{Text: "ok"}))
	require.NoError(t, store.SetAnswer(ctx, 3, RatingAnswer{Value: 2}))
	p = nav.Progress()
	assert.Equal(t, 3, p.Answered)
	assert.InDelta(t, 100.0, p.Percent, 0.001)
}

func TestNavigator_StartIndexFromResume(t *testing.T) {
	clock := newTestClock()
	nav, err := NewNavigator(NavigatorConfig{
		Questions:  Flatten(threeQuestionAssessment()),
		StartIndex: 2,
		Answers:    newTestStore(newMemoryAnswers(), clock),
		Attempts:   &memoryAttempts{},
		Clock:      clock,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, nav.Position())
	assert.Equal(t, uint(3), nav.Current().ID)
}

func TestNavigator_EmptyAssessment(t *testing.T) {
	_, err := NewNavigator(NavigatorConfig{})
	assert.ErrorIs(t, err, ErrEmptyAssessment)
}
