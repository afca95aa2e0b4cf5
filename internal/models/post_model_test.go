package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{ScheduleStatusPending, ScheduleStatusQueued, true},
		{ScheduleStatusQueued, ScheduleStatusPublishing, true},
		{ScheduleStatusPublishing, ScheduleStatusPublished, true},
		{ScheduleStatusPublishing, ScheduleStatusFailed, true},
		{ScheduleStatusPending, ScheduleStatusCancelled, true},
		{ScheduleStatusQueued, ScheduleStatusCancelled, true},
		{ScheduleStatusPublishing, ScheduleStatusCancelled, false},
		{ScheduleStatusPublished, ScheduleStatusFailed, false},
		{ScheduleStatusPublished, ScheduleStatusPending, false},
		{ScheduleStatusQueued, ScheduleStatusPending, false},
		{ScheduleStatusFailed, ScheduleStatusPublishing, false},
		{"unknown", ScheduleStatusQueued, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTransitionSources(t *testing.T) {
	assert.ElementsMatch(t, []string{ScheduleStatusPending, ScheduleStatusQueued}, TransitionSources(ScheduleStatusCancelled))
	assert.ElementsMatch(t, []string{ScheduleStatusPending, ScheduleStatusQueued, ScheduleStatusPublishing}, TransitionSources(ScheduleStatusFailed))
}

func TestChannelData(t *testing.T) {
	var nilChannel *Channel
	assert.Equal(t, "", nilChannel.Data("pageId"))

	ch := &Channel{ProviderData: map[string]string{"pageId": "123"}}
	assert.Equal(t, "123", ch.Data("pageId"))
	assert.Equal(t, "", ch.Data("missing"))
}
