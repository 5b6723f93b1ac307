package journal

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/moodtrail/tracker/internal/errors"
)

// Input is a create or patch payload. Nil fields were absent from the body.
type Input struct {
	Title       *string
	Content     *string
	Mood        *string
	EnergyLevel *int
	Tags        []string
	HasTags     bool
	Weather     *string
	Location    *string
	Activities  []string
	HasActivity bool
	Goals       *string
}

// ParseInput reads a journal payload leniently: tags and activities may be a
// comma separated string or an array, and energyLevel may be a number or a
// numeric string. Unknown fields are ignored.
func ParseInput(raw []byte) (Input, error) {
	if !gjson.ValidBytes(raw) {
		return Input{}, apperrors.InvalidInput("Invalid JSON body")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Input{}, apperrors.InvalidInput("Request body must be a JSON object")
	}

	in := Input{
		Title:    optString(doc, "title"),
		Content:  optString(doc, "content"),
		Mood:     optString(doc, "mood"),
		Weather:  optString(doc, "weather"),
		Location: optString(doc, "location"),
		Goals:    optString(doc, "goals"),
	}

	if v := doc.Get("energyLevel"); v.Exists() && v.Type != gjson.Null {
		level, err := parseEnergy(v)
		if err != nil {
			return Input{}, err
		}
		in.EnergyLevel = &level
	}
	in.Tags, in.HasTags = optList(doc, "tags")
	in.Activities, in.HasActivity = optList(doc, "activities")
	return in, nil
}

func optString(doc gjson.Result, key string) *string {
	v := doc.Get(key)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := v.String()
	return &s
}

func parseEnergy(v gjson.Result) (int, error) {
	switch v.Type {
	case gjson.Number:
		f := v.Float()
		if f != math.Trunc(f) {
			return 0, apperrors.InvalidInput("energyLevel must be a whole number")
		}
		return int(f), nil
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return 0, apperrors.InvalidInput("energyLevel must be a number")
		}
		return n, nil
	}
	return 0, apperrors.InvalidInput("energyLevel must be a number")
}

// optList reports the cleaned list and whether the key carried a value. An
// empty string counts as absent.
func optList(doc gjson.Result, key string) ([]string, bool) {
	v := doc.Get(key)
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return nil, false
	case v.IsArray():
		var items []string
		for _, item := range v.Array() {
			items = append(items, item.String())
		}
		return cleanList(items), true
	case v.Type == gjson.String:
		if strings.TrimSpace(v.Str) == "" {
			return nil, false
		}
		return SplitTags(v.Str), true
	}
	return nil, false
}

// SplitTags splits a comma separated tag string.
func SplitTags(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
