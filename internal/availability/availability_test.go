package availability

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkmk6794/timepick/internal/domain"
)

func twoDayEvent() *domain.Event {
	return &domain.Event{
		ID: "ev-1",
		ProposedDates: []domain.ProposedDate{
			{ID: "d1", Date: "2025-06-01", StartTime: "09:00", EndTime: "10:00"},
			{ID: "d2", Date: "2025-06-02", StartTime: "14:00", EndTime: "15:00"},
		},
		Participants: []domain.Participant{
			{ID: "p-alice", Name: "Alice", Email: "alice@example.com"},
			{ID: "p-bob", Name: "Bob", Email: "bob@example.com"},
		},
	}
}

func TestSummarize_TwoParticipantsBothResponded(t *testing.T) {
	ev := twoDayEvent()
	// Bob answered first; names must still follow participant order.
	responses := []domain.Response{
		{ID: "r2", EventID: "ev-1", ParticipantID: "p-bob", SelectedDates: []string{"d1", "d2"}},
		{ID: "r1", EventID: "ev-1", ParticipantID: "p-alice", SelectedDates: []string{"d1"}},
	}

	s := Summarize(ev, responses)

	require.Len(t, s.ByDate, 2)
	assert.Equal(t, "d1", s.ByDate[0].ID)
	assert.Equal(t, 2, s.ByDate[0].AvailableCount)
	assert.Equal(t, 100, s.ByDate[0].Percentage)
	assert.Equal(t, []string{"Alice", "Bob"}, s.ByDate[0].AvailableParticipants)

	assert.Equal(t, 1, s.ByDate[1].AvailableCount)
	assert.Equal(t, 50, s.ByDate[1].Percentage)
	assert.Equal(t, []string{"Bob"}, s.ByDate[1].AvailableParticipants)

	assert.Equal(t, 2, s.TotalResponses)
	assert.Equal(t, 100, s.ResponseRate)
}

func TestSummarize_ResubmissionShiftsCounts(t *testing.T) {
	ev := twoDayEvent()
	responses := []domain.Response{
		{ID: "r1", EventID: "ev-1", ParticipantID: "p-alice", SelectedDates: []string{"d1"}},
		{ID: "r3", EventID: "ev-1", ParticipantID: "p-bob", SelectedDates: []string{"d2"}},
	}

	s := Summarize(ev, responses)

	assert.Equal(t, 1, s.ByDate[0].AvailableCount)
	assert.Equal(t, 50, s.ByDate[0].Percentage)
	assert.Equal(t, 1, s.ByDate[1].AvailableCount)
	assert.Equal(t, 50, s.ByDate[1].Percentage)
	assert.Equal(t, 100, s.ResponseRate)
}

func TestSummarize_NoResponses(t *testing.T) {
	s := Summarize(twoDayEvent(), nil)

	for _, d := range s.ByDate {
		assert.Zero(t, d.AvailableCount)
		assert.Zero(t, d.Percentage)
		assert.NotNil(t, d.AvailableParticipants)
	}
	require.Len(t, s.Participants, 2)
	assert.False(t, s.Participants[0].HasResponded)
	assert.Empty(t, s.Participants[0].SelectedDates)
	assert.Zero(t, s.TotalResponses)
	assert.Zero(t, s.ResponseRate)
}

func TestSummarize_ZeroParticipants(t *testing.T) {
	ev := twoDayEvent()
	ev.Participants = nil

	s := Summarize(ev, []domain.Response{
		{ID: "r1", EventID: "ev-1", ParticipantID: "ghost", SelectedDates: []string{"d1"}},
	})

	assert.Zero(t, s.ByDate[0].AvailableCount)
	assert.Zero(t, s.ByDate[0].Percentage)
	assert.Zero(t, s.ResponseRate)
}

func TestSummarize_IgnoresForeignAndUnknownResponses(t *testing.T) {
	ev := twoDayEvent()
	responses := []domain.Response{
		{ID: "x", EventID: "other", ParticipantID: "p-alice", SelectedDates: []string{"d1"}},
		{ID: "y", EventID: "ev-1", ParticipantID: "stranger", SelectedDates: []string{"d1"}},
		{ID: "z", EventID: "ev-1", ParticipantID: "p-bob", SelectedDates: []string{"d1", "not-a-date"}},
	}

	s := Summarize(ev, responses)

	assert.Equal(t, 1, s.ByDate[0].AvailableCount)
	assert.Equal(t, []string{"Bob"}, s.ByDate[0].AvailableParticipants)
	assert.Equal(t, 1, s.TotalResponses)
	assert.Equal(t, 50, s.ResponseRate)
}

func TestSummarize_DoesNotMutateEvent(t *testing.T) {
	ev := twoDayEvent()
	before := ev.Clone()

	s := Summarize(ev, []domain.Response{
		{ID: "r", EventID: "ev-1", ParticipantID: "p-bob", SelectedDates: []string{"d2"}},
	})
	_ = Ranked(s.ByDate)

	assert.Equal(t, before, ev)
}

func TestSummarize_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 200; iter++ {
		ev := &domain.Event{ID: "ev"}
		nDates := rng.Intn(6) + 1
		nPeople := rng.Intn(9)
		for i := 0; i < nDates; i++ {
			ev.ProposedDates = append(ev.ProposedDates, domain.ProposedDate{ID: "d" + strconv.Itoa(i)})
		}
		for i := 0; i < nPeople; i++ {
			ev.Participants = append(ev.Participants, domain.Participant{ID: "p" + strconv.Itoa(i), Name: "n" + strconv.Itoa(i)})
		}

		var responses []domain.Response
		for _, p := range ev.Participants {
			if rng.Intn(3) == 0 {
				continue
			}
			var sel []string
			for _, d := range ev.ProposedDates {
				if rng.Intn(2) == 0 {
					sel = append(sel, d.ID)
				}
			}
			responses = append(responses, domain.Response{EventID: "ev", ParticipantID: p.ID, SelectedDates: sel})
		}

		s := Summarize(ev, responses)

		for i, d := range ev.ProposedDates {
			want := 0
			for _, p := range ev.Participants {
				for _, r := range responses {
					if r.ParticipantID == p.ID && r.Includes(d.ID) {
						want++
						break
					}
				}
			}
			require.Equal(t, want, s.ByDate[i].AvailableCount)

			denom := math.Max(1, float64(nPeople))
			wantPct := int(math.Floor(100*float64(want)/denom + 0.5))
			require.Equal(t, wantPct, s.ByDate[i].Percentage)
		}
	}
}

func TestRanked_StableByCountDescending(t *testing.T) {
	dates := []DateAvailability{
		{ProposedDate: domain.ProposedDate{ID: "a"}, AvailableCount: 1},
		{ProposedDate: domain.ProposedDate{ID: "b"}, AvailableCount: 3},
		{ProposedDate: domain.ProposedDate{ID: "c"}, AvailableCount: 1},
		{ProposedDate: domain.ProposedDate{ID: "d"}, AvailableCount: 3},
		{ProposedDate: domain.ProposedDate{ID: "e"}, AvailableCount: 0},
	}

	ranked := Ranked(dates)

	ids := make([]string, len(ranked))
	for i, d := range ranked {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, ids)
	assert.Equal(t, "a", dates[0].ID, "input must keep its order")
}

func TestBest(t *testing.T) {
	_, ok := Best(nil)
	assert.False(t, ok)

	_, ok = Best([]DateAvailability{{AvailableCount: 0}})
	assert.False(t, ok)

	best, ok := Best([]DateAvailability{
		{ProposedDate: domain.ProposedDate{ID: "a"}, AvailableCount: 2},
		{ProposedDate: domain.ProposedDate{ID: "b"}, AvailableCount: 2},
	})
	require.True(t, ok)
	assert.Equal(t, "a", best.ID)
}

func TestPercent(t *testing.T) {
	cases := []struct {
		n, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 5, 0},
		{1, 2, 50},
		{1, 3, 33},
		{2, 3, 67},
		{1, 8, 13},
		{3, 8, 38},
		{5, 5, 100},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Percent(c.n, c.total), "Percent(%d, %d)", c.n, c.total)
	}
}
