package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHandicap(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"", nil},
		{"   ", nil},
		{"nan", nil},
		{"NaN", nil},
		{"12.5", ptr(12.5)},
		{" -1.5 ", ptr(-1.5)},
		{"Pro (2.4)", ptr(2.4)},
		{"HCP 7 approx", ptr(7)},
		{"999", nil},
		{"1200", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseHandicap(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestHandicapKeyUnratedTrails(t *testing.T) {
	rated := Participant{Handicap: ptr(36)}
	missing := Participant{}
	placeholder := Participant{Handicap: ptr(UnratedHandicap)}

	assert.True(t, rated.IsRated())
	assert.False(t, missing.IsRated())
	assert.False(t, placeholder.IsRated())
	assert.True(t, math.IsInf(missing.HandicapKey(), 1))
	assert.True(t, math.IsInf(placeholder.HandicapKey(), 1))
	assert.Less(t, rated.HandicapKey(), missing.HandicapKey())
}

func TestCloneIsDeep(t *testing.T) {
	code := "3"
	p := Participant{ID: 1, Handicap: ptr(4), GroupCode: &code, CheckInTime: &Timestamp{Time: time.Now()}}
	c := p.Clone()

	*c.Handicap = 10
	*c.GroupCode = "9"
	c.CheckInTime.Time = time.Time{}

	assert.Equal(t, 4.0, *p.Handicap)
	assert.Equal(t, "3", *p.GroupCode)
	assert.False(t, p.CheckInTime.IsZero())
}

func TestParticipantDecodesBackendPayload(t *testing.T) {
	raw := `{
		"id": 12, "tournament_id": 3, "registration_number": "A012", "member_number": null,
		"name": "王小明", "gender": "M", "handicap": null, "pre_group_code": "B",
		"group_code": null, "display_order": null, "notes": null,
		"check_in_status": "checked_in", "check_in_time": "2024-05-01T08:30:15.123456"
	}`
	var p Participant
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, 12, p.ID)
	assert.Nil(t, p.Handicap)
	assert.Equal(t, UngroupedCode, p.Group())
	assert.True(t, p.IsCheckedIn())
	require.NotNil(t, p.CheckInTime)
	assert.Equal(t, 8, p.CheckInTime.Hour())
	assert.Equal(t, 15, p.CheckInTime.Second())
}

func TestTimestampFormats(t *testing.T) {
	for _, in := range []string{
		`"2024-05-01T08:30:00Z"`,
		`"2024-05-01T08:30:00+00:00"`,
		`"2024-05-01T08:30:00"`,
		`"2024-05-01 08:30:00"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		assert.Equal(t, 30, ts.Minute(), in)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestFieldApplyAndValue(t *testing.T) {
	var p Participant

	FieldNotes.Apply(&p, "late arrival")
	assert.Equal(t, "late arrival", FieldNotes.Value(p))

	FieldHandicap.Apply(&p, "Pro (2.4)")
	assert.Equal(t, "2.4", FieldHandicap.Value(p))
	FieldHandicap.Apply(&p, "")
	assert.Nil(t, p.Handicap)

	FieldGroupCode.Apply(&p, "5")
	assert.Equal(t, "5", p.Group())
	FieldGroupCode.Apply(&p, "None")
	assert.Nil(t, p.GroupCode)

	assert.NoError(t, FieldGender.Validate("F"))
	assert.Error(t, FieldGender.Validate("X"))
	assert.NoError(t, FieldCheckInStatus.Validate("cancelled"))
	assert.Error(t, FieldCheckInStatus.Validate("maybe"))

	_, err := ParseField("nickname")
	assert.Error(t, err)
	f, err := ParseField("notes")
	require.NoError(t, err)
	assert.Equal(t, FieldNotes, f)
}

func TestNormalizeGroupCode(t *testing.T) {
	empty, none, sentinel, padded := "", "None", UngroupedCode, " 7 "
	assert.Equal(t, UngroupedCode, NormalizeGroupCode(nil))
	assert.Equal(t, UngroupedCode, NormalizeGroupCode(&empty))
	assert.Equal(t, UngroupedCode, NormalizeGroupCode(&none))
	assert.Equal(t, UngroupedCode, NormalizeGroupCode(&sentinel))
	assert.Equal(t, "7", NormalizeGroupCode(&padded))
}

func ptr(v float64) *float64 {
	return &v
}
