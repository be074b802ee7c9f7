package privacy

import (
	"fmt"
	"strings"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
)

var sourceCategory = map[model.Source]string{
	model.SourceEmail:         "correspondence",
	model.SourceCalendarEvent: "meeting",
	model.SourceTransaction:   "financial",
}

// rawSurrogate describes an encrypted record using only source, coarse
// category and the calendar day it pertains to.
func rawSurrogate(rec *model.Record) string {
	category := sourceCategory[rec.Source]
	if rec.Source == model.SourceTransaction {
		if c := coarseCategory(rec.RawFields["category"]); c != "" {
			category = "financial, " + c
		}
	}

	return fmt.Sprintf("%s record, category %s, %s", rec.Source.Label(), category, day(rec))
}

func anonymizedSurrogate(rec *model.Record, summary string) string {
	return fmt.Sprintf("%s on %s: %s", rec.Source.Label(), day(rec), summary)
}

func day(rec *model.Record) string {
	ts := rec.Timestamp.UTC()
	return ts.Weekday().String() + " " + ts.Format("2006-01-02")
}

// coarseCategory keeps the top level of a provider category such as
// "Food and Drink, Restaurants".
func coarseCategory(category string) string {
	top, _, _ := strings.Cut(category, ",")
	return strings.ToLower(strings.TrimSpace(top))
}
