package teamscrape

import (
	"strings"

	"github.com/sells-group/leadtrace/internal/model"
)

// teamContextKeywords mark a page as team/about-like by URL or title.
var teamContextKeywords = []string{
	"team", "about", "over-ons", "over ons", "medewerkers", "mensen",
	"people", "staff", "who-we-are", "wie-zijn-wij", "leadership",
	"management", "onze-mensen", "our-team",
}

// hasTeamContext reports whether the page URL/title looks team-like.
func hasTeamContext(context string) bool {
	lower := strings.ToLower(context)
	for _, kw := range teamContextKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Credibility scores a scraped page 0..3.
//
// Base point: at least two valid people, or exactly one person with at
// least two independent corroborating signals. Bonus points for
// structured data and for team/about context in the page URL or title.
func Credibility(people []model.Person, hasStructured bool, pageContext string) int {
	score := 0

	switch {
	case len(people) >= 2:
		score++
	case len(people) == 1 && people[0].SignalCount() >= 2:
		score++
	}

	if hasStructured {
		score++
	}
	if hasTeamContext(pageContext) {
		score++
	}

	if score > 3 {
		score = 3
	}
	return score
}

// Accepted reports whether a page cleared the team-page bar: the people
// requirement must hold and the total credibility must reach 2.
func Accepted(people []model.Person, credibility int) bool {
	peopleOK := len(people) >= 2 ||
		(len(people) == 1 && people[0].SignalCount() >= 2)
	return peopleOK && credibility >= 2
}
