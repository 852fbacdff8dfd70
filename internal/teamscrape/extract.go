package teamscrape

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/leadtrace/internal/model"
)

// jsonldPerson mirrors the schema.org Person shape, including the
// wrapped @graph form some CMSes emit.
type jsonldPerson struct {
	Type     any    `json:"@type"`
	Name     string `json:"name"`
	JobTitle string `json:"jobTitle"`
	Email    string `json:"email"`
	Phone    string `json:"telephone"`
	Image    any    `json:"image"`
	SameAs   any    `json:"sameAs"`
}

// extractJSONLD parses application/ld+json blocks for Person objects.
func extractJSONLD(doc *goquery.Document) []model.Person {
	var people []model.Person

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		for _, node := range jsonldNodes(raw) {
			if p, ok := personFromNode(node); ok {
				people = append(people, p)
			}
		}
	})

	return people
}

// jsonldNodes flattens a JSON-LD payload (object, array, or @graph)
// into candidate nodes. Malformed JSON yields nothing.
func jsonldNodes(raw string) []json.RawMessage {
	var nodes []json.RawMessage

	var asArray []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &asArray); err == nil {
		nodes = asArray
	} else {
		nodes = []json.RawMessage{json.RawMessage(raw)}
	}

	var out []json.RawMessage
	for _, node := range nodes {
		var graph struct {
			Graph []json.RawMessage `json:"@graph"`
		}
		if err := json.Unmarshal(node, &graph); err == nil && len(graph.Graph) > 0 {
			out = append(out, graph.Graph...)
			continue
		}
		out = append(out, node)
	}
	return out
}

func personFromNode(node json.RawMessage) (model.Person, bool) {
	var jp jsonldPerson
	if err := json.Unmarshal(node, &jp); err != nil {
		return model.Person{}, false
	}
	if !typeIsPerson(jp.Type) || strings.TrimSpace(jp.Name) == "" {
		return model.Person{}, false
	}

	p := model.Person{
		Name:   strings.TrimSpace(jp.Name),
		Role:   strings.TrimSpace(jp.JobTitle),
		Email:  cleanEmail(jp.Email),
		Phone:  strings.TrimSpace(jp.Phone),
		Photo:  stringFromAny(jp.Image),
		Source: "jsonld",
	}
	for _, link := range stringsFromAny(jp.SameAs) {
		if strings.Contains(link, "linkedin.com") {
			p.LinkedIn = link
			break
		}
	}
	return p, true
}

func typeIsPerson(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Person")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Person") {
				return true
			}
		}
	}
	return false
}

func stringFromAny(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if u, ok := t["url"].(string); ok {
			return strings.TrimSpace(u)
		}
	case []any:
		if len(t) > 0 {
			return stringFromAny(t[0])
		}
	}
	return ""
}

func stringsFromAny(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// cardSelectors match common team-member card markup.
var cardSelectors = []string{
	"[class*=team-member]", "[class*=teammember]", "[class*=team_member]",
	"[class*=member]", "[class*=person]", "[class*=profile-card]",
	"[class*=staff]", "[class*=employee]",
}

// roleKeywords hint that a text fragment is a job title.
var roleKeywords = []string{
	"directeur", "director", "founder", "oprichter", "ceo", "cto", "cfo",
	"coo", "manager", "partner", "eigenaar", "owner", "consultant",
	"adviseur", "advisor", "engineer", "developer", "designer",
	"marketeer", "sales", "recruiter", "hoofd", "head of", "lead",
	"specialist", "accountant", "jurist", "advocaat",
}

var nameRe = regexp.MustCompile(`^[\p{Lu}][\p{L}'’.-]+(?:\s+(?:van|de|der|den|te|ten|von|le|la|du)\b)*(?:\s+[\p{Lu}][\p{L}'’.-]+){1,3}$`)

// looksLikeName applies a loose human-name shape test.
func looksLikeName(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > 60 {
		return false
	}
	return nameRe.MatchString(text)
}

func looksLikeRole(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" || len(lower) > 80 {
		return false
	}
	for _, kw := range roleKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func cleanEmail(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "mailto:")
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}

func cleanPhone(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "tel:")
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		return ""
	}
	return s
}

// extractDOM walks team-card markup for people: a name-shaped heading
// plus whatever contact signals the card carries.
func extractDOM(doc *goquery.Document) []model.Person {
	var people []model.Person

	for _, sel := range cardSelectors {
		doc.Find(sel).Each(func(_ int, card *goquery.Selection) {
			p, ok := personFromCard(card)
			if ok {
				people = append(people, p)
			}
		})
		if len(people) > 0 {
			break
		}
	}

	return people
}

func personFromCard(card *goquery.Selection) (model.Person, bool) {
	var p model.Person

	// Name: the first name-shaped heading or strong text.
	card.Find("h1, h2, h3, h4, h5, strong, b, [class*=name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if looksLikeName(text) {
			p.Name = text
			return false
		}
		return true
	})
	if p.Name == "" {
		return model.Person{}, false
	}

	// Role: any short fragment containing a role keyword.
	card.Find("p, span, em, [class*=title], [class*=role], [class*=function]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if text != p.Name && looksLikeRole(text) {
			p.Role = text
			return false
		}
		return true
	})

	card.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		switch {
		case strings.HasPrefix(href, "mailto:"):
			if p.Email == "" {
				p.Email = cleanEmail(href)
			}
		case strings.HasPrefix(href, "tel:"):
			if p.Phone == "" {
				p.Phone = cleanPhone(href)
			}
		case strings.Contains(href, "linkedin.com"):
			if p.LinkedIn == "" {
				p.LinkedIn = href
			}
		}
	})

	if img := card.Find("img").First(); img.Length() > 0 {
		if src, ok := img.Attr("src"); ok && !strings.HasPrefix(src, "data:") {
			p.Photo = src
		}
	}

	p.Source = "dom"
	return p, true
}
